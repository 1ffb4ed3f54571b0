package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/flagx"
)

var ownFlags = []string{"-a", "-h", "-d", "-k", "-g", "-u", "-p", "-i", "-e", "-up", "-bp", "-ca", "-ttl", "-r", "-l", "-log-format"}

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          HTTP bind address (e.g., ":8080")
//	-h string          gRPC health bind address
//	-d string          PostgreSQL DSN
//	-k string          base64 AES-256 cipher key
//	-g string          AWS region
//	-u string          AWS access key id
//	-p string          AWS secret access key
//	-i string          AWS account id
//	-e string          S3/IAM base endpoint override
//	-up string         user policy template path
//	-bp string         bucket policy template path
//	-ca string         access-check URL prefix
//	-ttl int           upload authorization lifetime, seconds
//	-r string          Redis address for the provisioning lock
//	-l string          log level
//	-log-format string json|console
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "h", config.EndpointAddrGRPC, "address and port to run gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CipherKey, "k", config.CipherKey, "base64 cipher key")
	fs.StringVar(&config.AWSRegion, "g", config.AWSRegion, "AWS region")
	fs.StringVar(&config.AWSAccessKeyID, "u", config.AWSAccessKeyID, "AWS access key id")
	fs.StringVar(&config.AWSSecretAccessKey, "p", config.AWSSecretAccessKey, "AWS secret access key")
	fs.StringVar(&config.AWSAccountID, "i", config.AWSAccountID, "AWS account id")
	endpoint := fs.String("e", "", "S3/IAM base endpoint")
	fs.StringVar(&config.UserPolicyTemplate, "up", config.UserPolicyTemplate, "user policy template path")
	fs.StringVar(&config.BucketPolicyTemplate, "bp", config.BucketPolicyTemplate, "bucket policy template path")
	fs.StringVar(&config.CheckAccessURL, "ca", config.CheckAccessURL, "access check URL prefix")
	ttl := fs.Int("ttl", int(config.UploadURLTTL.Seconds()), "upload authorization lifetime (in seconds)")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (json|console)")

	if err := fs.Parse(flagx.FilterArgs(args, ownFlags)); err != nil {
		panic(err)
	}

	if *endpoint != "" {
		config.IAMBaseEndpoint = *endpoint
		config.S3BaseEndpoint = *endpoint
	}
	config.UploadURLTTL = time.Duration(*ttl) * time.Second
}
