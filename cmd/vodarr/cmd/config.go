package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing vodarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows every configuration option with the value currently in effect,
after applying the config file and environment variables. Redirect the
output to a file to create a configuration template:

  vodarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/vodarr, $HOME/.vodarr)
  - Environment variables (VODARR_SERVER_PORT, VODARR_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the VODARR_ prefix and underscores for nesting.
Example: server.port -> VODARR_SERVER_PORT

Secret values are redacted in the output.`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations and sizes for human readability and redacting
// fields tagged as secrets.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		if fieldType.Tag.Get("masq") == "secret" {
			if s, ok := field.Interface().(string); ok && s != "" {
				result[key] = observability.RedactedValue
			} else {
				result[key] = ""
			}
			continue
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = config.Duration(v).String()
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# vodarr Configuration File")
	fmt.Println("# ==========================")
	fmt.Println("#")
	fmt.Println("# Values reflect the config file and environment currently in effect.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 2d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   VODARR_WATCHER_CHANNELS, VODARR_WATCHER_SCHEDULE")
	fmt.Println("#   VODARR_TWITCH_CLIENT_ID, VODARR_TWITCH_OAUTH_TOKEN")
	fmt.Println("#   VODARR_STORAGE_BASE_DIR, VODARR_STORAGE_TEMP_DIR")
	fmt.Println("#   VODARR_DATABASE_DRIVER, VODARR_DATABASE_DSN")
	fmt.Println("#   VODARR_LOGGING_LEVEL, VODARR_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
