package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/courtdata/statpipe/pkg/schema"
)

// Job is one document an adapter wants fetched during a backfill.
type Job struct {
	// URL is the document URL.
	URL string

	// Kind labels the dominant entity kind in the document, selecting the
	// per-kind cache TTL.
	Kind schema.EntityKind
}

// Adapter turns one source's documents into raw records. Implementations
// must be stateless; one adapter instance serves concurrent backfills.
type Adapter interface {
	// SourceKey identifies the source for rate limiting and lineage.
	SourceKey() string

	// Jobs lists the documents to fetch for the given seasons.
	Jobs(seasons []string) []Job

	// Parse converts one fetched document into raw records.
	Parse(job Job, body []byte) ([]schema.RawRecord, error)
}

// Factory constructs an adapter from its source base URL.
type Factory func(baseURL string) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory under a source key. Call from init.
// Registering a key twice panics; two adapters for one source is a wiring
// mistake.
func Register(sourceKey string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[sourceKey]; exists {
		panic(fmt.Sprintf("pipeline: adapter %q registered twice", sourceKey))
	}
	registry[sourceKey] = factory
}

// NewAdapter instantiates the registered adapter for a source key.
func NewAdapter(sourceKey, baseURL string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[sourceKey]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q (have %v)", sourceKey, RegisteredSources())
	}
	return factory(baseURL), nil
}

// RegisteredSources lists the registered source keys, sorted.
func RegisteredSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
