package configs

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/observelabs/logsearch-mcp/internal/domain"
)

// FileConfig defines the structure loaded from the optional YAML
// configuration file. Environment variables override file settings.
type FileConfig struct {
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RateLimit          struct {
		MaxRequests int           `yaml:"max_requests"`
		Window      time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

// Config holds the final application configuration, merged from file and
// environment variables. Fields are loaded from environment variables with
// the prefix "LOGSEARCH_", potentially overriding file settings.
type Config struct {
	// Config File Path (loaded first from env)
	ConfigFilePath string `envconfig:"CONFIG_FILE"`

	ListenAddr        string        `envconfig:"LISTEN_ADDR" default:":8080"`
	HTTPClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	QueryTimeout      time.Duration `envconfig:"QUERY_TIMEOUT" default:"10m"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile           string        `envconfig:"LOG_FILE" default:"/tmp/logsearch-mcp.log"`

	// The file-merged fields below carry no envconfig default tags: the
	// override pass in Load would re-apply such defaults and clobber
	// values taken from the file. Their defaults live in Load instead.
	RateLimitMaxRequests int           `envconfig:"RATE_LIMIT_MAX_REQUESTS"`
	RateLimitWindow      time.Duration `envconfig:"RATE_LIMIT_WINDOW"`

	// CORSAllowedOrigins is the origin allow-list for the network
	// transport. "*" (the default) is permissive.
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`

	// Credentials and workspace identifier for the downstream query
	// capability. Opaque to this core; validated present-and-non-empty
	// before any call is attempted.
	TenantID     string `envconfig:"AZURE_TENANT_ID"`
	ClientID     string `envconfig:"AZURE_CLIENT_ID"`
	ClientSecret string `envconfig:"AZURE_CLIENT_SECRET"`
	WorkspaceID  string `envconfig:"AZURE_WORKSPACE_ID"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the downstream query credentials are present. A
// failure here is a configuration error: fatal for the stdio entrypoint,
// surfaced through the health endpoint on the network transport. Only
// variable names are ever reported, never values.
func (c *Config) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"LOGSEARCH_AZURE_TENANT_ID":     c.TenantID,
		"LOGSEARCH_AZURE_CLIENT_ID":     c.ClientID,
		"LOGSEARCH_AZURE_CLIENT_SECRET": c.ClientSecret,
		"LOGSEARCH_AZURE_WORKSPACE_ID":  c.WorkspaceID,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.NewConfigurationError(
			"missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load loads configuration first from environment variables (to get the
// file path), then from the specified YAML file, and finally merges and
// overrides with environment variables again.
func Load() (*Config, error) {
	var initialCfg Config
	if err := envconfig.Process("logsearch", &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	finalCfg := initialCfg

	// Defaults for the file-merged fields, applied before the file gets
	// a chance to override them.
	if finalCfg.RateLimitMaxRequests == 0 {
		finalCfg.RateLimitMaxRequests = 10
	}
	if finalCfg.RateLimitWindow == 0 {
		finalCfg.RateLimitWindow = 60 * time.Second
	}
	if len(finalCfg.CORSAllowedOrigins) == 0 {
		finalCfg.CORSAllowedOrigins = []string{"*"}
	}

	if initialCfg.ConfigFilePath != "" {
		yamlFile, err := os.ReadFile(initialCfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		var fileCfg FileConfig
		if err := yaml.Unmarshal(yamlFile, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		slog.Info("Loaded configuration from file.", "path", initialCfg.ConfigFilePath)

		if len(fileCfg.CORSAllowedOrigins) > 0 {
			finalCfg.CORSAllowedOrigins = fileCfg.CORSAllowedOrigins
		}
		if fileCfg.RateLimit.MaxRequests > 0 {
			finalCfg.RateLimitMaxRequests = fileCfg.RateLimit.MaxRequests
		}
		if fileCfg.RateLimit.Window > 0 {
			finalCfg.RateLimitWindow = fileCfg.RateLimit.Window
		}
	}

	// Process environment variables again to allow overrides over file
	// settings. Only explicitly-set variables apply here, since the
	// file-merged fields have no default tags.
	if err := envconfig.Process("logsearch", &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}

	return &finalCfg, nil
}
