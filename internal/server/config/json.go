package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddr    string         `json:"endpoint_addr"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
	TLSCert         string         `json:"tls_cert"`
	TLSKey          string         `json:"tls_key"`
	DatabaseDSN     string         `json:"database_dsn"`
	Secret          string         `json:"secret"`
	StatsdAddr      string         `json:"statsd_addr"`
	StatsdPrefix    string         `json:"statsd_prefix"`
	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent flag: nothing is loaded.
// An unreadable or invalid file panics: the process must not start on a
// half-applied configuration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.ShutdownTimeout = c.ShutdownTimeout.Duration
	config.TLSCert = c.TLSCert
	config.TLSKey = c.TLSKey
	config.DatabaseDSN = c.DatabaseDSN
	config.Secret = c.Secret
	config.StatsdAddr = c.StatsdAddr
	config.StatsdPrefix = c.StatsdPrefix
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
