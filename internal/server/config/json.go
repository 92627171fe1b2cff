package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/envault/envault/internal/flagx"
	"github.com/envault/envault/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Interval fields use
// timex.Duration so config files can write either "24h" or integer
// nanoseconds. After unmarshalling, values are copied into the runtime
// Config.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	InvitationTTL         timex.Duration `json:"invitation_ttl"`
	SweepInterval         timex.Duration `json:"sweep_interval"`
	RetentionLimit        int64          `json:"retention_limit"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	RecipientKeyURL       string         `json:"recipient_key_url"`
	RecipientPushURL      string         `json:"recipient_push_url"`
	RecipientKeyCacheTTL  timex.Duration `json:"recipient_key_cache_ttl"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded and the Config stays untouched.
// An unreadable file or invalid JSON panics: a half-applied config is
// worse than a refused start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
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
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	config.InvitationTTL = time.Duration(c.InvitationTTL.Duration)
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.RetentionLimit = c.RetentionLimit
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RecipientKeyURL = c.RecipientKeyURL
	config.RecipientPushURL = c.RecipientPushURL
	config.RecipientKeyCacheTTL = time.Duration(c.RecipientKeyCacheTTL.Duration)
}
