package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"symptosafe/internal/config"
	"symptosafe/internal/logging"
	"symptosafe/internal/safety"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *safety.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "intake",
		Short: "Symptom screening and assessment from the command line",
		Long: `intake runs the emergency screen and the symptom analysis pipeline
locally. Configuration comes from the environment (and ./.env) exactly as for
the server; flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().String("provider", "", "Reasoning provider: openai or gemini (or set REASONER_PROVIDER)")
	root.PersistentFlags().String("registry", "", "Emergency registry YAML file (or set REGISTRY_FILE)")
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newDetectCmd(a))
	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newFacilitiesCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	v := config.NewViper()
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "console")
	for key, flag := range map[string]string{
		"REASONER_PROVIDER": "provider",
		"REGISTRY_FILE":     "registry",
		"LOG_LEVEL":         "log-level",
	} {
		if err := bindFlag(v, cmd, key, flag); err != nil {
			return err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	registry, err := safety.LoadRegistry(cfg.RegistryFile)
	if err != nil {
		return err
	}

	a.cfg, a.logger, a.registry = cfg, logger, registry
	return nil
}

// bindFlag binds only flags the user actually set, so unset flags never mask
// environment values.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) error {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("bind --%s: %w", name, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
