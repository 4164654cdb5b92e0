package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrSkyle/fsgroup-psp/pkg/admission"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

// readInput reads the file named by args[0], or stdin when it is absent or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

// loadSettings reads the policy settings file. No file means RunAsAny.
func loadSettings(path string, logger *slog.Logger) (settings.Settings, error) {
	if path == "" {
		logger.Warn("No settings file configured, every fsGroup is allowed", "rule", settings.RuleRunAsAny)
		return settings.Default(), nil
	}
	st, err := settings.Load(path)
	if err != nil {
		return st, err
	}
	logger.Info("Settings loaded", "file", path, "rule", st.String())
	return st, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Evaluate a validation request envelope",
		Long: `Read a {"request": ..., "settings": ...} envelope and print the validation
response. Engine errors exit non-zero instead of printing a rejection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			payload, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			validator := admission.NewValidator(admission.WithLogger(newLogger(cfg.Log, cmd.ErrOrStderr())))
			resp, err := validator.Validate(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newValidateSettingsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-settings [file|-]",
		Short: "Check a settings document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			payload, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			validator := admission.NewValidator(admission.WithLogger(newLogger(cfg.Log, cmd.ErrOrStderr())))
			resp := validator.ValidateSettings(payload)
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Valid {
				return fmt.Errorf("%w: %s", settings.ErrInvalidSettings, *resp.Message)
			}
			return nil
		},
	}
}

func newProtocolVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocol-version",
		Short: "Print the policy protocol version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), admission.NewValidator().ProtocolVersion())
			return err
		},
	}
}
