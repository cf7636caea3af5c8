// Package config loads runtime configuration for the sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are YAML, anything else is JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Durations are strings like "3s" or integer nanoseconds:
//
//	server_url: https://cradle5.example.org
//	db_path: /var/lib/cradle5/client.db
//	sync_interval: 10m
//	retry:
//	  max_retries: 5
//	  max_elapsed_time: 30s
//	lookups: [districts, facilities]
//	log:
//	  level: info
//	s3:
//	  endpoint: http://127.0.0.1:9000
//	  bucket: cradle5-backups
//
// Environment variables are not read; use the file or flags.
package config
