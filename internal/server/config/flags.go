package config

import (
	"flag"
	"os"
	"time"

	"github.com/envault/envault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-i int      invitation TTL, minutes
//	-w int      invitation sweep interval, seconds
//	-l int      version retention limit per project
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name (empty disables archiving)
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string   recipient key endpoint URL (empty disables the exporter)
//	-o string   recipient push endpoint URL
//	-m int      recipient key cache TTL, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-i", "-w", "-l", "-u", "-p", "-b", "-g", "-e", "-k", "-o", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")
	invitationTTL := fs.Int("i", int(config.InvitationTTL.Minutes()), "invitation_ttl (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Seconds()), "sweep_interval (in seconds)")

	fs.Int64Var(&config.RetentionLimit, "l", config.RetentionLimit, "version retention limit per project")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.RecipientKeyURL, "k", config.RecipientKeyURL, "recipient key endpoint URL")
	fs.StringVar(&config.RecipientPushURL, "o", config.RecipientPushURL, "recipient push endpoint URL")
	keyCacheTTL := fs.Int("m", int(config.RecipientKeyCacheTTL.Minutes()), "recipient_key_cache_ttl (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.InvitationTTL = time.Duration(*invitationTTL) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Second
	config.RecipientKeyCacheTTL = time.Duration(*keyCacheTTL) * time.Minute
}
