package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrSkyle/fsgroup-psp/pkg/providers/k8s"
	"github.com/DrSkyle/fsgroup-psp/pkg/storage"
)

func newAuditCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Dry-run the policy against running Pods",
		Long: `List the Pods of a cluster and report which ones the policy would accept,
reject or mutate. Nothing is changed in the cluster.

--output takes a local directory or an s3://bucket/prefix URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			st, err := loadSettings(cfg.SettingsFile, logger)
			if err != nil {
				return err
			}

			client, err := k8s.NewClient(cfg.Audit.Kubeconfig)
			if err != nil {
				return err
			}

			r, err := k8s.NewAuditor(client, logger).Audit(cmd.Context(), st, cfg.Audit.Namespace)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Render())

			if cfg.Audit.Output == "" {
				return nil
			}
			store, err := storage.Open(cmd.Context(), cfg.Audit.Output)
			if err != nil {
				return err
			}
			key, err := r.Export(cmd.Context(), store, cfg.Audit.Format)
			if err != nil {
				return err
			}
			logger.Info("Report exported", "location", cfg.Audit.Output, "key", key)
			return nil
		},
	}

	cmd.Flags().StringP("namespace", "n", "", "Namespace to audit (default all)")
	cmd.Flags().String("kubeconfig", "", "Path to kubeconfig (default in-cluster, then KUBECONFIG)")
	cmd.Flags().StringP("output", "o", "", "Export the report to a directory or s3:// URL")
	cmd.Flags().String("format", "json", "Report format (json, yaml, csv)")
	bindFlags(v, cmd.Flags(), map[string]string{
		"namespace":  "audit.namespace",
		"kubeconfig": "audit.kubeconfig",
		"output":     "audit.output",
		"format":     "audit.format",
	})
	return cmd
}
