package config

import (
	"fmt"
	"log"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all the configuration for the application.
type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer   `yaml:"http_server"`
	Database     `yaml:"database"`
	URLShortener `yaml:"url_shortener"`
	Auth         `yaml:"auth"`
	Retention    `yaml:"retention"`
	Analytics    `yaml:"analytics"`
	RateLimit    `yaml:"rate_limit"`
	CORS         `yaml:"cors"`
}

// HTTPServer holds HTTP listener configuration.
type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Database holds storage configuration. Driver is one of postgres, sqlite or memory.
type Database struct {
	Driver          string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"shorty"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	DBName          string `yaml:"dbname" env:"DB_NAME" env-default:"shorty"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	Timezone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	Path            string `yaml:"path" env:"DB_PATH" env-default:"shorty.db"` // sqlite only
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	SkipMigrations  bool   `yaml:"skip_migrations" env:"DB_SKIP_MIGRATIONS"`
}

// URLShortener holds service-specific configuration.
type URLShortener struct {
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	AliasLength int    `yaml:"alias_length" env:"ALIAS_LENGTH" env-default:"6"`
	MaxRetries  int    `yaml:"max_retries" env:"ALIAS_MAX_RETRIES" env-default:"5"`
}

// Auth holds credential settings.
type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL" env-default:"30m"`
	Issuer     string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"shorty"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`
}

// Retention controls the inactive link sweeper.
// Флаги выключения отрицательные: cleanenv подставляет env-default поверх
// нулевого значения из файла, и false нельзя было бы задать.
type Retention struct {
	Disabled         bool          `yaml:"disabled" env:"RETENTION_DISABLED"`
	Interval         time.Duration `yaml:"interval" env:"RETENTION_INTERVAL" env-default:"1h"`
	InactivityWindow time.Duration `yaml:"inactivity_window" env:"RETENTION_INACTIVITY_WINDOW" env-default:"168h"`
	CycleTimeout     time.Duration `yaml:"cycle_timeout" env:"RETENTION_CYCLE_TIMEOUT" env-default:"1m"`
}

// Analytics controls asynchronous click processing.
type Analytics struct {
	Disabled        bool          `yaml:"disabled" env:"ANALYTICS_DISABLED"`
	Workers         int           `yaml:"workers" env:"ANALYTICS_WORKERS" env-default:"3"`
	BufferSize      int           `yaml:"buffer_size" env:"ANALYTICS_BUFFER_SIZE" env-default:"1000"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"ANALYTICS_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"ANALYTICS_RETRY_DELAY" env-default:"1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ANALYTICS_SHUTDOWN_TIMEOUT" env-default:"30s"`
	RegexesPath     string        `yaml:"regexes_path" env:"UA_REGEXES_PATH"` // empty uses the built-in definitions
}

// RateLimit limits link creation per client IP. Forwarding headers are
// honored only for requests coming from TrustedProxies (IPs or CIDRs).
type RateLimit struct {
	Disabled       bool     `yaml:"disabled" env:"RATE_LIMIT_DISABLED"`
	RPS            float64  `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"5"`
	Burst          int      `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// CORS lists origins allowed to call the API from a browser.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://127.0.0.1:3000"`
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	// Check if config file path is specified
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml" // default path
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return cfg
}

// Load reads configuration from the YAML file at path, falling back to
// environment variables only when the file does not exist.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		// If config file doesn't exist, use environment variables only
		log.Println("Config file not found, using environment variables only")
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.URLShortener.AliasLength <= 0 {
		return fmt.Errorf("alias_length must be positive, got %d", c.URLShortener.AliasLength)
	}
	if !c.Retention.Disabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention interval must be positive, got %s", c.Retention.Interval)
	}
	if _, err := c.RateLimit.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// ProxyPrefixes разбирает trusted_proxies. Одиночный адрес становится
// префиксом /32 или /128.
func (r RateLimit) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, raw := range r.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
