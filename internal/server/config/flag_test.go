package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-w", "15s", "-d", "db", "-s", "0123456789abcdef",
			"-m", "127.0.0.1:8125", "-n", "prefix",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-tc", "cert.pem", "-tk", "key.pem",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddr:    "127.0.0.1:9090",
				ShutdownTimeout: 15 * time.Second,
				DatabaseDSN:     "db",
				Secret:          "0123456789abcdef",
				StatsdAddr:      "127.0.0.1:8125",
				StatsdPrefix:    "prefix",
				S3RootUser:      "user",
				S3RootPassword:  "password",
				S3Bucket:        "bucket",
				S3Region:        "us-west-1",
				S3BaseEndpoint:  "http://endpoint",
				TLSCert:         "cert.pem",
				TLSKey:          "key.pem",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
