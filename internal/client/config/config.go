package config

import "time"

// Config holds runtime settings for the sync client.
//
// Fields:
//   - ServerURL: base URL of the forms API.
//   - DBPath: path of the local SQLite database.
//   - RequestTimeout: per-request HTTP timeout.
//   - OnlineCheckInterval: how often the worker pings the server.
//   - SyncInterval: period of background syncs; zero disables them.
//   - Retry*: backoff bounds for idempotent GETs.
//   - Lookups: dynamic lookup lists refreshed on every sync.
//   - S3*: destination of database backups.
type Config struct {
	ServerURL           string
	DBPath              string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMaxElapsedTime  time.Duration
	RetryMaxRetries      uint64

	Lookups []string

	LogLevel  string
	LogFormat string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DBPath = "cradlesync.db"
	c.RequestTimeout = 15 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.RetryInitialInterval = 500 * time.Millisecond
	c.RetryMaxInterval = 5 * time.Second
	c.RetryMaxElapsedTime = 30 * time.Second
	c.RetryMaxRetries = 5
	c.Lookups = []string{"districts", "facilities"}
	c.LogLevel = "warn"
	c.LogFormat = "text"
	c.S3Region = "us-east-1"
	c.S3Bucket = "cradle5-backups"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
