package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/zipstage/component"
	"github.com/c360/zipstage/componentregistry"
	"github.com/c360/zipstage/config"
	"github.com/c360/zipstage/errors"
)

// cliOptions holds the persistent flags.
type cliOptions struct {
	configPaths     []string
	logLevel        string
	logFormat       string
	shutdownTimeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Run barrier stages over NATS or MQTT",
		Long:          "zipstage runs processing stages that wait for one buffer on every input, process the tuple and publish the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	defaultConfig := []string{}
	if env := os.Getenv(config.EnvPrefix + "_CONFIG"); env != "" {
		defaultConfig = strings.Split(env, ",")
	}
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVarP(&opts.configPaths, "config", "c", defaultConfig,
		"Configuration file, repeat to layer overrides (env: ZIPSTAGE_CONFIG)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: json, text (overrides config)")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured stages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newTypesCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// loadConfig layers every configured file over the defaults.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	if len(opts.configPaths) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: no configuration file given", errors.ErrMissingConfig),
			"main", "loadConfig", "config flag")
	}
	loader := config.NewLoader()
	for _, p := range opts.configPaths {
		loader.AddLayer(strings.TrimSpace(p))
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	return cfg, nil
}

// builtinRegistry returns a registry holding every built-in stage type.
func builtinRegistry() (*component.Registry, error) {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return nil, fmt.Errorf("register stage types: %w", err)
	}
	return registry, nil
}

// checkStageTypes reports configured stages whose type is not registered.
func checkStageTypes(cfg *config.Config, registry *component.Registry) error {
	var unknown []string
	for _, name := range cfg.EnabledStages() {
		if _, ok := registry.Lookup(cfg.Stages[name].Type); !ok {
			unknown = append(unknown, fmt.Sprintf("%s (%s)", name, cfg.Stages[name].Type))
		}
	}
	if len(unknown) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownType, strings.Join(unknown, ", ")),
			"main", "checkStageTypes", "type lookup")
	}
	return nil
}

func newValidateCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			if err := checkStageTypes(cfg, registry); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d stage(s), transport %s\n",
				len(cfg.EnabledStages()), cfg.Transport.Kind)
			return nil
		},
	}
}

func newTypesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the registered stage types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			infos, err := registry.ListAvailable()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			names := make([]string, 0, len(infos))
			for name := range infos {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				info := infos[name]
				_, _ = fmt.Fprintf(out, "%-12s %-24s in=[%s] out=[%s]\n", name, info.Classification,
					strings.Join(info.Inputs, ","), strings.Join(info.Outputs, ","))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
			return err
		},
	}
}
