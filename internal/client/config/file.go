package config

import (
	"time"

	"github.com/cradle5/cradlesync/internal/configx"
	"github.com/cradle5/cradlesync/internal/flagx"
	"github.com/cradle5/cradlesync/internal/timex"
)

// FileConfig is the on-disk shape of the configuration, JSON or YAML.
// Durations use timex.Duration so files may say "3s" or give nanoseconds.
type FileConfig struct {
	ServerURL           string         `json:"server_url" yaml:"server_url"`
	DBPath              string         `json:"db_path" yaml:"db_path"`
	RequestTimeout      timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval" yaml:"sync_interval"`

	Retry struct {
		InitialInterval timex.Duration `json:"initial_interval" yaml:"initial_interval"`
		MaxInterval     timex.Duration `json:"max_interval" yaml:"max_interval"`
		MaxElapsedTime  timex.Duration `json:"max_elapsed_time" yaml:"max_elapsed_time"`
		MaxRetries      uint64         `json:"max_retries" yaml:"max_retries"`
	} `json:"retry" yaml:"retry"`

	Lookups []string `json:"lookups" yaml:"lookups"`

	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`

	S3 struct {
		Endpoint  string `json:"endpoint" yaml:"endpoint"`
		Region    string `json:"region" yaml:"region"`
		Bucket    string `json:"bucket" yaml:"bucket"`
		AccessKey string `json:"access_key" yaml:"access_key"`
		SecretKey string `json:"secret_key" yaml:"secret_key"`
	} `json:"s3" yaml:"s3"`
}

// parseFile overlays cfg with the file named by -c or -config. Only values
// present in the file replace what cfg already holds. Panics on read or
// parse errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFile()
	if path == "" {
		return
	}

	var fc FileConfig
	if err := configx.DecodeFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.DBPath, fc.DBPath)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, fc.SyncInterval)

	setDuration(&cfg.RetryInitialInterval, fc.Retry.InitialInterval)
	setDuration(&cfg.RetryMaxInterval, fc.Retry.MaxInterval)
	setDuration(&cfg.RetryMaxElapsedTime, fc.Retry.MaxElapsedTime)
	if fc.Retry.MaxRetries > 0 {
		cfg.RetryMaxRetries = fc.Retry.MaxRetries
	}

	if len(fc.Lookups) > 0 {
		cfg.Lookups = fc.Lookups
	}

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)

	setString(&cfg.S3Endpoint, fc.S3.Endpoint)
	setString(&cfg.S3Region, fc.S3.Region)
	setString(&cfg.S3Bucket, fc.S3.Bucket)
	setString(&cfg.S3AccessKey, fc.S3.AccessKey)
	setString(&cfg.S3SecretKey, fc.S3.SecretKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
