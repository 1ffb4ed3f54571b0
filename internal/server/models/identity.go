// Package models defines server-side data models persisted in the database.
package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
)

// Identity is the provisioned cloud identity of one platform user.
// A row exists only when every provisioning step succeeded; it is never
// updated afterwards.
type Identity struct {
	// PublicID is the upstream platform's user id (UUID string); primary key.
	PublicID string `db:"public_id"`
	// UserName is the derived cloud identity name, see DeriveUserName.
	UserName string `db:"aws_user_name"`
	// UserID is the provider-assigned identity id.
	UserID string `db:"aws_user_id"`
	// CreateRequestID is the provider's request id for the CreateUser call.
	CreateRequestID string `db:"aws_create_user_request_id"`
	// Arn is the fully-qualified identity resource name.
	Arn string `db:"aws_arn"`
	// EncryptedAccessKeyID and EncryptedSecretAccessKey are credential cipher
	// outputs; plaintext keys are never stored.
	EncryptedAccessKeyID     string `db:"aws_access_key_id"`
	EncryptedSecretAccessKey string `db:"aws_secret_access_key"`
	// PolicyName is the inline policy attached to the identity.
	PolicyName string `db:"aws_policy_name"`
	// CreatedAt is the provider-reported creation time.
	CreatedAt time.Time `db:"aws_create_date"`
}

// BucketName is the storage bucket owned by this identity.
func (i *Identity) BucketName() string {
	return BucketName(i.UserName)
}

// DeriveUserName maps a public id to its cloud identity name: a fixed prefix
// followed by the id with hyphens removed, case preserved.
func DeriveUserName(publicID string) string {
	return common.CloudUserPrefix + strings.ReplaceAll(publicID, "-", "")
}

// BucketName lower-cases a derived user name; bucket names are
// case-insensitive in the provider's namespace and must be lower case.
func BucketName(userName string) string {
	return strings.ToLower(userName)
}
