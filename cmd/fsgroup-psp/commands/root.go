package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DrSkyle/fsgroup-psp/pkg/config"
	"github.com/DrSkyle/fsgroup-psp/pkg/version"
)

const envPrefix = "FSGROUP_PSP"

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   version.AppName,
		Short: "fsGroup admission policy for Kubernetes Pods",
		Long: `fsgroup-psp checks, rejects or defaults spec.securityContext.fsGroup on Pods
against a list of allowed ranges.`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.fsgroup-psp.yaml)")
	rootCmd.PersistentFlags().String("settings", "", "Policy settings file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format (json, text)")
	bindFlags(v, rootCmd.PersistentFlags(), map[string]string{
		"settings":   "settings_file",
		"log-level":  "log.level",
		"log-format": "log.format",
	})

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd.OutOrStdout(), cmd)
	})

	rootCmd.AddCommand(
		newServeCmd(v),
		newValidateCmd(v),
		newValidateSettingsCmd(v),
		newProtocolVersionCmd(),
		newAuditCmd(v),
	)
	return rootCmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig layers defaults, the config file and FSGROUP_PSP_* variables. A missing
// default config file is not an error; a missing explicit one is.
func initConfig(v *viper.Viper, cfgFile string) error {
	setDefaults(v, config.Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path := filepath.Join(home, ".fsgroup-psp.yaml")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.tls_cert", d.Server.TLSCert)
	v.SetDefault("server.tls_key", d.Server.TLSKey)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("settings_file", d.SettingsFile)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.disabled", d.Telemetry.Disabled)
	v.SetDefault("audit.namespace", d.Audit.Namespace)
	v.SetDefault("audit.kubeconfig", d.Audit.Kubeconfig)
	v.SetDefault("audit.output", d.Audit.Output)
	v.SetDefault("audit.format", d.Audit.Format)
}

func loadConfig(v *viper.Viper) (config.Config, error) {
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func renderHelp(w io.Writer, cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s %s", strings.ToUpper(version.AppName), version.Current)))
	fmt.Fprintln(w, cmd.Root().Short)

	fmt.Fprintln(w, titleStyle.Render("USAGE"))
	fmt.Fprintf(w, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(w, "  %-18s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintln(w, flagStyle.Render(output))
	})
	fmt.Fprintln(w)
}
