package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/baton/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or validate baton configuration",
	Long: `View or validate baton configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for invalid values",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a config file at ~/.config/baton/config.yaml holding every option at its default.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-validate the config file whenever it changes",
	Long: `Watch the active config file and report whether each saved version is
valid. Runs until interrupted.`,
	RunE: runConfigWatch,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configWatchCmd)
	rootCmd.AddCommand(configCmd)
}

// effectiveConfig unmarshals viper state without validating it.
func effectiveConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	errs := cfg.Validate()
	if len(errs) == 0 {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}
	for _, e := range errs {
		fmt.Fprintf(out, "  ✗ %s\n", e.Error())
	}
	return fmt.Errorf("configuration has %d invalid value(s)", len(errs))
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", configFile)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	content := append([]byte("# baton configuration\n# Environment overrides: BATON_<SECTION>_<KEY>, e.g. BATON_LOCKS_DEFAULT_TIMEOUT_MS\n\n"), data...)
	if err := os.WriteFile(configFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. $HOME/.config/baton/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: BATON_* (e.g., BATON_LOGGING_LEVEL)")

	return nil
}

func runConfigWatch(cmd *cobra.Command, args []string) error {
	used := viper.ConfigFileUsed()
	if used == "" {
		return fmt.Errorf("no config file in use; create one with 'baton config init'")
	}
	out := cmd.OutOrStdout()
	pal := palette{styled: isTerminal(out)}

	config.Watch(func(path string, cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintf(out, "%s %s\n%v\n", pal.render(errorStyle, "invalid:"), path, err)
			return
		}
		fmt.Fprintf(out, "%s %s (log level %s, default lock timeout %s)\n",
			pal.render(successStyle, "reloaded:"), path, cfg.Logging.Level, cfg.Locks.DefaultTimeout())
	})

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", used)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	return nil
}
