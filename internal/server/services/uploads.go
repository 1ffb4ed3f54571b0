package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/server/cloud"
	"github.com/dmitrijs2005/gophbucket/internal/server/config"
	"github.com/dmitrijs2005/gophbucket/internal/server/metrics"
	"github.com/dmitrijs2005/gophbucket/internal/server/models"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/repomanager"
)

// UploadAuthorization is a presigned POST form for one object.
type UploadAuthorization struct {
	ObjectName string
	URL        string
	Fields     map[string]string
}

// IssueResult separates "no identity" (Found false) from "identity with
// nothing authorized" (Found true, empty Authorizations).
type IssueResult struct {
	Found          bool
	Authorizations []UploadAuthorization
}

// UploadService mints upload authorizations signed with the caller's own
// provisioned credentials.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      CredentialCipher
	presigners  cloud.PresignerFactory
	metrics     *metrics.Metrics
	log         logging.Logger
	defaultTTL  time.Duration
	callTimeout time.Duration
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, cipher CredentialCipher,
	presigners cloud.PresignerFactory, m *metrics.Metrics, log logging.Logger, cfg *config.Config,
) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: rm,
		cipher:      cipher,
		presigners:  presigners,
		metrics:     m,
		log:         log,
		defaultTTL:  cfg.UploadURLTTL,
		callTimeout: cfg.CallTimeout,
	}
}

// IssueUploadAuthorizations returns one authorization per object name, in the
// requested order. Objects the provider refuses are left out. A non-positive
// ttl uses the configured default.
func (s *UploadService) IssueUploadAuthorizations(ctx context.Context, publicID string, objectNames []string, ttl time.Duration) (*IssueResult, error) {
	log := s.log.With("public_id", publicID)
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	identity, err := s.repomanager.Identities(s.db).GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.UploadAuthorizations.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return &IssueResult{}, nil
		}
		return nil, err
	}

	keyID, secret, err := s.credentials(identity)
	if err != nil {
		// Undecryptable credentials are reported as a missing identity.
		log.Warn(ctx, "stored credentials unreadable", "user_name", identity.UserName, "error", common.ErrCredentialDecryption.Error())
		s.metrics.UploadAuthorizations.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return &IssueResult{}, nil
	}

	return s.issue(ctx, log, identity.BucketName(), keyID, secret, objectNames, ttl)
}

func (s *UploadService) credentials(identity *models.Identity) (string, string, error) {
	keyID, err := s.cipher.Decrypt(identity.EncryptedAccessKeyID)
	if err != nil {
		return "", "", err
	}
	secret, err := s.cipher.Decrypt(identity.EncryptedSecretAccessKey)
	if err != nil {
		return "", "", err
	}
	return keyID, secret, nil
}

func (s *UploadService) issue(ctx context.Context, log logging.Logger, bucket, keyID, secret string, objectNames []string, ttl time.Duration) (*IssueResult, error) {
	presigner, err := s.presigners(ctx, keyID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: open scoped session: %v", common.ErrProviderRejected, err)
	}

	result := &IssueResult{Found: true, Authorizations: make([]UploadAuthorization, 0, len(objectNames))}
	for _, name := range objectNames {
		cctx, cancel := cloud.WithTimeout(ctx, s.callTimeout)
		req, err := presigner.PresignPostObject(cctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(name),
		}, func(o *s3.PresignPostOptions) {
			o.Expires = ttl
		})
		cancel()
		if err == nil && req == nil {
			err = errors.New("empty presign response")
		}
		if err != nil {
			log.Warn(ctx, "upload authorization skipped", "bucket", bucket, "object", name, "error", err.Error())
			s.metrics.UploadAuthorizations.WithLabelValues(metrics.OutcomeSkipped).Inc()
			continue
		}

		result.Authorizations = append(result.Authorizations, UploadAuthorization{
			ObjectName: name,
			URL:        req.URL,
			Fields:     req.Values,
		})
		s.metrics.UploadAuthorizations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}

	log.Debug(ctx, "upload authorizations issued", "bucket", bucket,
		"requested", len(objectNames), "issued", len(result.Authorizations), "ttl", ttl.String())
	return result, nil
}
