package model

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailboxConfig holds the IMAP connection settings for the operations inbox.
type MailboxConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// PasswordKey names a keyring entry used when Password is empty.
	PasswordKey string `mapstructure:"password_key" yaml:"password_key"`

	TLS                bool `mapstructure:"tls" yaml:"tls"`
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	Mailbox          string        `mapstructure:"mailbox" yaml:"mailbox"`
	Lookback         time.Duration `mapstructure:"lookback" yaml:"lookback"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	LogoutTimeout    time.Duration `mapstructure:"logout_timeout" yaml:"logout_timeout"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// Addr returns host:port for dialing.
func (c MailboxConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PollerConfig controls the scan and sweep cadence.
type PollerConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	StartupDelay  time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
}

// PowerConfig configures the power-backup (onduleur) alert classifier.
type PowerConfig struct {
	// Senders is the allow-list of addresses the UPS supervisor mails from.
	Senders []string `mapstructure:"senders" yaml:"senders"`

	// Subject must match the email subject exactly.
	Subject string `mapstructure:"subject" yaml:"subject"`

	// AdministrativeMarker flags a body as an administrative notice
	// rather than an alert.
	AdministrativeMarker string `mapstructure:"administrative_marker" yaml:"administrative_marker"`

	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// OperationConfig configures the radio-network (INPT) classifier.
type OperationConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`

	// Timezone is the IANA zone the announced windows are written in.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// Location resolves Timezone, falling back to the local zone. Validate
// rejects a zone that cannot be loaded.
func (c OperationConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// PushConfig holds VAPID web push settings.
type PushConfig struct {
	VAPIDPublicKey  string  `mapstructure:"vapid_public_key" yaml:"vapid_public_key"`
	VAPIDPrivateKey string  `mapstructure:"vapid_private_key" yaml:"vapid_private_key"`
	Subscriber      string  `mapstructure:"subscriber" yaml:"subscriber"`
	TTL             int     `mapstructure:"ttl" yaml:"ttl"`
	RatePerSecond   float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig holds the read API listener settings.
type HTTPConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox   MailboxConfig   `mapstructure:"mailbox" yaml:"mailbox"`
	Poller    PollerConfig    `mapstructure:"poller" yaml:"poller"`
	Power     PowerConfig     `mapstructure:"power" yaml:"power"`
	Operation OperationConfig `mapstructure:"operation" yaml:"operation"`
	Push      PushConfig      `mapstructure:"push" yaml:"push"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// envPrefix namespaces environment overrides, e.g. OPSDASH_MAILBOX_HOST.
const envPrefix = "OPSDASH"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox.host", "")
	v.SetDefault("mailbox.port", 993)
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.password", "")
	v.SetDefault("mailbox.password_key", "")
	v.SetDefault("mailbox.tls", true)
	v.SetDefault("mailbox.insecure_skip_verify", true)
	v.SetDefault("mailbox.mailbox", "INBOX")
	v.SetDefault("mailbox.lookback", "720h")
	v.SetDefault("mailbox.connect_timeout", "20s")
	v.SetDefault("mailbox.logout_timeout", "5s")
	v.SetDefault("mailbox.fetch_timeout", "5m")
	v.SetDefault("mailbox.fetch_concurrency", 8)

	v.SetDefault("poller.interval", "1m")
	v.SetDefault("poller.sweep_interval", "1h")
	v.SetDefault("poller.startup_delay", "10s")

	v.SetDefault("power.senders", []string{})
	v.SetDefault("power.subject", "Alerte Onduleur")
	v.SetDefault("power.administrative_marker", "Message administratif")
	v.SetDefault("power.capacity", 100)

	v.SetDefault("operation.capacity", 200)
	v.SetDefault("operation.timezone", "Europe/Paris")

	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "mailto:exploitation@sdis.fr")
	v.SetDefault("push.ttl", 3600)
	v.SetDefault("push.rate_per_second", 10.0)

	v.SetDefault("store.path", "opsdash.db")
	v.SetDefault("http.listen", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// overlaid with OPSDASH_* environment variables. A missing file yields the
// defaults plus whatever the environment provides.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports configuration that cannot produce a working service.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Mailbox.Host == "" {
		errs = append(errs, errors.New("mailbox.host is required"))
	}
	if c.Mailbox.Username == "" {
		errs = append(errs, errors.New("mailbox.username is required"))
	}
	if c.Power.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("power.capacity must be positive, got %d", c.Power.Capacity))
	}
	if c.Operation.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("operation.capacity must be positive, got %d", c.Operation.Capacity))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}
	if c.Operation.Timezone != "" {
		if _, err := time.LoadLocation(c.Operation.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("operation.timezone %q: %w", c.Operation.Timezone, err))
		}
	}
	return errors.Join(errs...)
}
