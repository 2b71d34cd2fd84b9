package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron"
)

type PersisterType int

const (
	PersisterTypeInvalid PersisterType = iota
	PersisterTypeMemory
	PersisterTypePostgresql
)

var PersisterNameToType = map[string]PersisterType{
	"memory":     PersisterTypeMemory,
	"postgresql": PersisterTypePostgresql,
}

const (
	GatewayModeHTTP = "http"
	GatewayModeFake = "fake"
)

const (
	envVarPrefix = "azebot"

	usageListFormat = `The service is configured via environment vars only (a .env file is read first). The following environment variables can be used:
{{range .}}
{{usage_key .}}
  description: {{usage_description .}}
  type:        {{usage_type .}}
  default:     {{usage_default .}}
  required:    {{usage_required .}}
{{end}}
`
)

// Config is populated from AZEBOT_* variables. Keys with an explicit
// envconfig name also accept the unprefixed form, e.g. DATABASE_URL.
type Config struct {
	HTTPHost         string        `envconfig:"http_host" default:"0.0.0.0" desc:"HTTP listen host"`
	HTTPPort         int           `envconfig:"http_port" default:"8080" desc:"HTTP listen port"`
	HTTPReadTimeout  time.Duration `envconfig:"http_read_timeout" default:"10s" desc:"HTTP read timeout"`
	HTTPWriteTimeout time.Duration `envconfig:"http_write_timeout" default:"20s" desc:"HTTP write timeout"`
	HTTPIdleTimeout  time.Duration `envconfig:"http_idle_timeout" default:"60s" desc:"HTTP idle timeout"`
	ShutdownTimeout  time.Duration `envconfig:"shutdown_timeout" default:"15s" desc:"Grace period for in-flight requests on shutdown"`
	TLSCertFile      string        `envconfig:"tls_cert_file" desc:"Serve HTTPS with this certificate"`
	TLSKeyFile       string        `envconfig:"tls_key_file" desc:"Private key for TLS_CERT_FILE"`
	GRPCPort         int           `envconfig:"grpc_port" default:"9090" desc:"gRPC health port, 0 disables it"`

	PersisterType     PersisterType `ignored:"true"`
	PersisterTypeName string        `envconfig:"persister_type" default:"postgresql" desc:"Storage backend: postgresql or memory"`
	DatabaseURL       string        `envconfig:"database_url" desc:"PostgreSQL connection string, required for postgresql"`
	SeedFile          string        `envconfig:"seed_file" desc:"Optional YAML article catalogue loaded at start"`

	GatewayMode    string        `envconfig:"gateway_mode" default:"http" desc:"Payment gateway client: http or fake"`
	GatewayBaseURL string        `envconfig:"gateway_base_url" desc:"Payment gateway API base URL"`
	GatewayAPIKey  string        `envconfig:"gateway_api_key" desc:"Payment gateway secret key"`
	GatewayTimeout time.Duration `envconfig:"gateway_timeout" default:"10s" desc:"Payment gateway request timeout"`
	Currency       string        `envconfig:"currency" default:"XOF" desc:"ISO currency sent to the gateway"`
	SuccessURL     string        `envconfig:"success_url" default:"http://localhost:8080/payment/success" desc:"Where the gateway sends the browser after payment"`
	CancelURL      string        `envconfig:"cancel_url" default:"http://localhost:8080/payment/cancel" desc:"Where the gateway sends the browser on cancel"`

	JWTSecret    string `envconfig:"jwt_secret" desc:"HMAC secret for bearer tokens; empty disables token checks"`
	AuthRequired bool   `envconfig:"auth_required" default:"false" desc:"Reject API calls without a bearer token"`

	CreateRateRPS   float64 `envconfig:"create_rate_rps" default:"0.2" desc:"Payment creations per second per client, 0 disables"`
	CreateRateBurst int     `envconfig:"create_rate_burst" default:"3" desc:"Payment creation burst per client"`

	SweeperEnabled    bool          `envconfig:"sweeper_enabled" default:"true" desc:"Run the background reconciliation sweeper"`
	SweeperSchedule   string        `envconfig:"sweeper_schedule" default:"@every 1m" desc:"Sweeper cron schedule"`
	SweeperMinAge     time.Duration `envconfig:"sweeper_min_age" default:"2m" desc:"Minimum age of a pending transaction before the sweeper reconciles it"`
	SweeperCreatedTTL time.Duration `envconfig:"sweeper_created_ttl" default:"30m" desc:"Age after which never-acknowledged transactions are expired"`
	SweeperBatchSize  int           `envconfig:"sweeper_batch_size" default:"100" desc:"Transactions handled per sweeper run"`

	LogLevel  string `envconfig:"log_level" default:"info" desc:"debug, info, warn or error"`
	LogFormat string `envconfig:"log_format" default:"text" desc:"text or json"`
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(envVarPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OutputUsage prints the usage string to os.Stdout
func (c *Config) OutputUsage() {
	tabs := tabwriter.NewWriter(os.Stdout, 1, 0, 4, ' ', 0)
	_ = envconfig.Usagef(envVarPrefix, c, tabs, usageListFormat)
	_ = tabs.Flush()
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func (c *Config) validate() error {
	pt, ok := PersisterNameToType[strings.ToLower(c.PersisterTypeName)]
	if !ok {
		return fmt.Errorf("invalid persister type: '%v'", c.PersisterTypeName)
	}
	c.PersisterType = pt
	if pt == PersisterTypePostgresql && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	switch c.GatewayMode {
	case GatewayModeFake:
	case GatewayModeHTTP:
		if err := validateURL(c.GatewayBaseURL); err != nil {
			return fmt.Errorf("invalid gateway base url: %w", err)
		}
	default:
		return fmt.Errorf("invalid gateway mode: '%v'", c.GatewayMode)
	}

	if err := validateURL(c.SuccessURL); err != nil {
		return fmt.Errorf("invalid success url: %w", err)
	}
	if err := validateURL(c.CancelURL); err != nil {
		return fmt.Errorf("invalid cancel url: %w", err)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls cert and key files must be set together")
	}
	if c.AuthRequired && c.JWTSecret == "" {
		return fmt.Errorf("auth required but no jwt secret is set")
	}
	if c.SweeperEnabled {
		if _, err := cron.Parse(c.SweeperSchedule); err != nil {
			return fmt.Errorf("invalid sweeper schedule: '%v'", c.SweeperSchedule)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("'%v' is not an absolute http(s) url", raw)
	}
	return nil
}
