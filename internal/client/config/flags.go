package config

import (
	"flag"
	"os"
	"time"

	"github.com/cradle5/cradlesync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the forms API
//	-d string   path of the local database
//	-i int      online check interval (in seconds)
//	-s int      background sync interval (in seconds, 0 disables)
//	-t int      HTTP request timeout (in seconds)
//	-l string   log level (debug|info|warn|error)
//	-b string   S3 bucket for backups
//	-e string   S3 endpoint for backups
//
// os.Args is filtered with flagx.FilterArgs so flags owned by other
// components do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-s", "-t", "-l", "-b", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the forms API")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "path of the local database")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "background sync interval (in seconds, 0 disables)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "HTTP request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket for backups")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3 endpoint for backups")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
