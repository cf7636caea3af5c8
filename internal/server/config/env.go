package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvDatabaseDSN = "CRADLE5_DATABASE_DSN"
	EnvSecretKey   = "CRADLE5_SECRET_KEY"
	EnvAddr        = "CRADLE5_HTTP_ADDR"
	EnvAssignBatch = "CRADLE5_ASSIGN_BATCH"
)

// envFiles are loaded if present. Variables already set in the process
// environment are not overwritten.
var envFiles = []string{".env.local", ".env"}

// parseEnv overlays cfg with secrets and addresses from the environment.
func parseEnv(cfg *Config) {
	var present []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		_ = godotenv.Load(present...)
	}
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		cfg.DatabaseDSN = v
	}
	if v, ok := lookup(EnvSecretKey); ok && v != "" {
		cfg.SecretKey = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		cfg.EndpointAddrHTTP = v
	}
	if v, ok := lookup(EnvAssignBatch); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AssignBatchSize = n
		}
	}
}
