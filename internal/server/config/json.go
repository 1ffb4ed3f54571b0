package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophbucket/internal/flagx"
	"github.com/dmitrijs2005/gophbucket/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
// Absent keys leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	EndpointAddrGRPC *string `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string `json:"database_dsn"`

	CipherKey        *string `json:"cipher_key"`
	CipherPassphrase *string `json:"cipher_passphrase"`
	CipherSalt       *string `json:"cipher_salt"`

	AWSRegion          *string `json:"aws_region"`
	AWSAccessKeyID     *string `json:"aws_access_key_id"`
	AWSSecretAccessKey *string `json:"aws_secret_access_key"`
	AWSAccountID       *string `json:"aws_account_id"`
	IAMBaseEndpoint    *string `json:"iam_base_endpoint"`
	S3BaseEndpoint     *string `json:"s3_base_endpoint"`

	UserPolicyTemplate   *string `json:"user_policy_template"`
	BucketPolicyTemplate *string `json:"bucket_policy_template"`
	UserPolicyName       *string `json:"user_policy_name"`

	CheckAccessURL       *string `json:"check_access_url"`
	ProvisionAccessLevel *int    `json:"provision_access_level"`
	UploadAccessLevel    *int    `json:"upload_access_level"`
	RateLimitPerMinute   *int    `json:"rate_limit_per_minute"`

	UploadURLTTL *timex.Duration `json:"upload_url_ttl"`
	CallTimeout  *timex.Duration `json:"call_timeout"`

	PropagationMaxAttempts *int            `json:"propagation_max_attempts"`
	PropagationBaseDelay   *timex.Duration `json:"propagation_base_delay"`
	PropagationMaxDelay    *timex.Duration `json:"propagation_max_delay"`
	PropagationMaxElapsed  *timex.Duration `json:"propagation_max_elapsed"`

	RedisAddr *string         `json:"redis_addr"`
	LockTTL   *timex.Duration `json:"lock_ttl"`

	LogLevel  *string `json:"log_level"`
	LogFormat *string `json:"log_format"`
}

// parseJson overlays values from the file named by -c/-config, if any.
// An unreadable or malformed file panics: the server must not start on a
// half-applied configuration.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.CipherKey, c.CipherKey)
	setString(&config.CipherPassphrase, c.CipherPassphrase)
	setString(&config.CipherSalt, c.CipherSalt)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.AWSAccessKeyID, c.AWSAccessKeyID)
	setString(&config.AWSSecretAccessKey, c.AWSSecretAccessKey)
	setString(&config.AWSAccountID, c.AWSAccountID)
	setString(&config.IAMBaseEndpoint, c.IAMBaseEndpoint)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.UserPolicyTemplate, c.UserPolicyTemplate)
	setString(&config.BucketPolicyTemplate, c.BucketPolicyTemplate)
	setString(&config.UserPolicyName, c.UserPolicyName)
	setString(&config.CheckAccessURL, c.CheckAccessURL)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	setInt(&config.ProvisionAccessLevel, c.ProvisionAccessLevel)
	setInt(&config.UploadAccessLevel, c.UploadAccessLevel)
	setInt(&config.RateLimitPerMinute, c.RateLimitPerMinute)
	setInt(&config.PropagationMaxAttempts, c.PropagationMaxAttempts)

	if c.UploadURLTTL != nil {
		config.UploadURLTTL = c.UploadURLTTL.Duration
	}
	if c.CallTimeout != nil {
		config.CallTimeout = c.CallTimeout.Duration
	}
	if c.PropagationBaseDelay != nil {
		config.PropagationBaseDelay = c.PropagationBaseDelay.Duration
	}
	if c.PropagationMaxDelay != nil {
		config.PropagationMaxDelay = c.PropagationMaxDelay.Duration
	}
	if c.PropagationMaxElapsed != nil {
		config.PropagationMaxElapsed = c.PropagationMaxElapsed.Duration
	}
	if c.LockTTL != nil {
		config.LockTTL = c.LockTTL.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
