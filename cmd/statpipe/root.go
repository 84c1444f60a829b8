package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/courtdata/statpipe/pkg/config"
	"github.com/courtdata/statpipe/pkg/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "statpipe",
	Short:         "Sports statistics ingestion pipeline",
	Long:          "statpipe fetches sports statistics from configured sources,\nresolves identities across them, and builds canonical dimension and\nfact tables with full lineage.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logging.Setup(cfg.Logging())

		if cfg.MetricsAddr != "" {
			startMetricsListener(cfg.MetricsAddr)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $STATPIPE_CONFIG)")
}

// startMetricsListener serves /metrics in the background. Listener errors
// are logged, not fatal; a backfill without metrics still produces data.
func startMetricsListener(addr string) {
	log := logging.NewLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("metrics listener stopped")
		}
	}()
}
