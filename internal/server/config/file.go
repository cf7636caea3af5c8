package config

import (
	"time"

	"github.com/cradle5/cradlesync/internal/configx"
	"github.com/cradle5/cradlesync/internal/flagx"
	"github.com/cradle5/cradlesync/internal/timex"
)

// FileConfig is the on-disk shape of the server configuration, JSON or YAML.
type FileConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	Assign struct {
		// Interval is a pointer so a file can set it to zero.
		Interval  *timex.Duration `json:"interval" yaml:"interval"`
		BatchSize int             `json:"batch_size" yaml:"batch_size"`
	} `json:"assign" yaml:"assign"`

	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`
}

// parseFile overlays cfg with the file named by -c or -config.
// Panics on read or parse errors.
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
	setString(&cfg.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.SecretKey, fc.SecretKey)
	setDuration(&cfg.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setDuration(&cfg.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration)
	setDuration(&cfg.ShutdownTimeout, fc.ShutdownTimeout)

	if fc.Assign.Interval != nil {
		cfg.AssignInterval = fc.Assign.Interval.Duration
	}
	if fc.Assign.BatchSize > 0 {
		cfg.AssignBatchSize = fc.Assign.BatchSize
	}

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
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
