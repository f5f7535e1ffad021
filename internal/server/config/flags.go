package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/filevault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-w duration  graceful shutdown timeout (e.g., "10s")
//	-d string    PostgreSQL DSN
//	-s string    envelope secret (16 bytes)
//	-m string    StatsD address ("host:port"; empty disables metrics)
//	-n string    StatsD metric prefix
//	-u string    S3 root user
//	-p string    S3 root password
//	-b string    S3 bucket name
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-tc string   TLS certificate path (empty disables TLS)
//	-tk string   TLS key path
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-w", "-d", "-s", "-m", "-n", "-u", "-p", "-b", "-g", "-e", "-tc", "-tk"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.DurationVar(&config.ShutdownTimeout, "w", config.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Secret, "s", config.Secret, "envelope secret (16 bytes)")
	fs.StringVar(&config.StatsdAddr, "m", config.StatsdAddr, "StatsD address")
	fs.StringVar(&config.StatsdPrefix, "n", config.StatsdPrefix, "StatsD prefix")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.TLSCert, "tc", config.TLSCert, "TLS certificate path")
	fs.StringVar(&config.TLSKey, "tk", config.TLSKey, "TLS key path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
