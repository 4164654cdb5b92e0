package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrSkyle/fsgroup-psp/pkg/admission"
	"github.com/DrSkyle/fsgroup-psp/pkg/metrics"
	"github.com/DrSkyle/fsgroup-psp/pkg/server"
	"github.com/DrSkyle/fsgroup-psp/pkg/telemetry"
	"github.com/DrSkyle/fsgroup-psp/pkg/version"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the policy webhook server",
		Long: `Load and validate the settings file, then serve /validate, /validate_settings,
/protocol_version and the /mutate AdmissionReview webhook until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.OutOrStdout())

			st, err := loadSettings(cfg.SettingsFile, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, st, cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Warn("Telemetry shutdown failed", "error", err)
				}
			}()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			validator := admission.NewValidator(
				admission.WithLogger(logger),
				admission.WithMetrics(metrics.NewRecorder(reg)),
				admission.WithTracer(telemetry.Tracer("fsgroup-psp/admission")),
			)
			return server.New(cfg.Server, validator, st,
				server.WithLogger(logger),
				server.WithGatherer(reg),
			).Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :3000)")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS private key file")
	cmd.Flags().Bool("metrics", true, "Expose /metrics")
	cmd.Flags().String("otel-endpoint", "", "OTLP/HTTP trace endpoint")
	bindFlags(v, cmd.Flags(), map[string]string{
		"addr":          "server.addr",
		"tls-cert":      "server.tls_cert",
		"tls-key":       "server.tls_key",
		"metrics":       "server.metrics",
		"otel-endpoint": "telemetry.endpoint",
	})
	return cmd
}
