package client

import (
	"context"
	"time"
)

// Identity is the operator view of a provisioned cloud identity.
type Identity struct {
	PublicID   string    `json:"public_id"`
	UserName   string    `json:"aws_user_name"`
	UserID     string    `json:"aws_user_id"`
	Arn        string    `json:"aws_arn"`
	Bucket     string    `json:"bucket"`
	PolicyName string    `json:"policy_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// UploadURL is a single presigned form upload.
type UploadURL struct {
	ObjectID string            `json:"object_id"`
	URL      string            `json:"url"`
	Fields   map[string]string `json:"fields"`
}

type Client interface {
	Ping(ctx context.Context) error
	Provision(ctx context.Context, token, publicID string) error
	Details(ctx context.Context, token string) (*Identity, error)
	UploadURLs(ctx context.Context, token string, objects []string) ([]UploadURL, error)
}
