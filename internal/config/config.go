package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	LogFile        string `yaml:"log_file"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// SynthesisConfig selects the speech backend. Voice, sample rate, speed, and
// segmentation are fixed service constants, not configuration.
type SynthesisConfig struct {
	Mode     string `yaml:"mode"`
	Command  string `yaml:"command"`
	Endpoint string `yaml:"endpoint"`
	Warmup   bool   `yaml:"warmup"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Bus         BusConfig       `yaml:"bus"`
}

func Default() Config {
	return Config{
		ServiceName: "speechd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9102",
		},
		Synthesis: SynthesisConfig{
			Mode:   "mock",
			Warmup: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateSchema(data); err != nil {
			return cfg, fmt.Errorf("config file invalid: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validateSchema checks the raw document against the embedded schema so
// mistyped keys and wrong types fail with a path instead of becoming zero
// values.
func validateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	schema, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	return schema.Validate(raw)
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SPEECHD_SERVICE_NAME")
	overrideString(&cfg.Environment, "SPEECHD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SPEECHD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SPEECHD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SPEECHD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "SPEECHD_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.LogFile, "SPEECHD_TELEMETRY_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SPEECHD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SPEECHD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SPEECHD_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Synthesis.Mode, "SPEECHD_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Command, "SPEECHD_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.Endpoint, "SPEECHD_SYNTHESIS_ENDPOINT")
	overrideBool(&cfg.Synthesis.Warmup, "SPEECHD_SYNTHESIS_WARMUP")
	overrideBool(&cfg.Bus.Enabled, "SPEECHD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SPEECHD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SPEECHD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SPEECHD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SPEECHD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SPEECHD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SPEECHD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SPEECHD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SPEECHD_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text", "console":
	default:
		return errors.New("telemetry.log_format must be one of json|text|console")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Synthesis.Mode {
	case "mock", "exec", "server":
	default:
		return errors.New("synthesis.mode must be one of mock|exec|server")
	}
	if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if cfg.Synthesis.Mode == "server" && cfg.Synthesis.Endpoint == "" {
		return errors.New("synthesis.endpoint must be set when mode=server")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else {
			if len(cfg.Bus.Servers) == 0 {
				return errors.New("bus.servers must not be empty when embedded mode is disabled")
			}
		}
		if cfg.Bus.ConnectTimeout <= 0 {
			return errors.New("bus.connect_timeout_ms must be positive")
		}
	}
	return nil
}
