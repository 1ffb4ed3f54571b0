package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/dbx"
	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/retryx"
	"github.com/dmitrijs2005/gophbucket/internal/server/cloud"
	"github.com/dmitrijs2005/gophbucket/internal/server/config"
	"github.com/dmitrijs2005/gophbucket/internal/server/lock"
	"github.com/dmitrijs2005/gophbucket/internal/server/metrics"
	"github.com/dmitrijs2005/gophbucket/internal/server/models"
	"github.com/dmitrijs2005/gophbucket/internal/server/policy"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/repomanager"
)

// Pipeline step names, as they appear in logs, errors and metrics.
const (
	StepLock               = "lock"
	StepPrecheck           = "precheck"
	StepRenderUserPolicy   = "render_user_policy"
	StepCreateUser         = "create_user"
	StepAttachUserPolicy   = "attach_user_policy"
	StepCreateAccessKey    = "create_access_key"
	StepCreateBucket       = "create_bucket"
	StepWaitBucket         = "wait_bucket"
	StepRemovePublicBlock  = "remove_public_access_block"
	StepRenderBucketPolicy = "render_bucket_policy"
	StepAttachBucketPolicy = "attach_bucket_policy"
	StepPutBucketCors      = "put_bucket_cors"
	StepEncryptCredentials = "encrypt_credentials"
	StepPersist            = "persist"
)

const (
	defaultBucketRegion    = "us-east-1"
	provisionLockKeyPrefix = "provision:"
)

// CredentialCipher protects access-key material at rest.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ProvisioningService creates a cloud identity and a private bucket for a
// platform user and stores the result. Runs are not compensated: a failure
// after step 3 leaves the already-created cloud resources in place.
type ProvisioningService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	iam         cloud.IAMAPI
	buckets     cloud.BucketAPI
	cipher      CredentialCipher
	locker      lock.Locker
	metrics     *metrics.Metrics
	log         logging.Logger

	userPolicyTemplate   string
	bucketPolicyTemplate string
	userPolicyName       string
	region               string
	accountID            string
	callTimeout          time.Duration
	propagation          retryx.Policy
}

func NewProvisioningService(db *sql.DB, rm repomanager.RepositoryManager, clients *cloud.Clients,
	cipher CredentialCipher, locker lock.Locker, m *metrics.Metrics, log logging.Logger, cfg *config.Config,
) *ProvisioningService {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &ProvisioningService{
		db:                   db,
		repomanager:          rm,
		iam:                  clients.IAM,
		buckets:              clients.Buckets,
		cipher:               cipher,
		locker:               locker,
		metrics:              m,
		log:                  log,
		userPolicyTemplate:   cfg.UserPolicyTemplate,
		bucketPolicyTemplate: cfg.BucketPolicyTemplate,
		userPolicyName:       cfg.UserPolicyName,
		region:               cfg.AWSRegion,
		accountID:            cfg.AWSAccountID,
		callTimeout:          cfg.CallTimeout,
		propagation: retryx.Policy{
			MaxAttempts: cfg.PropagationMaxAttempts,
			BaseDelay:   cfg.PropagationBaseDelay,
			MaxDelay:    cfg.PropagationMaxDelay,
			MaxElapsed:  cfg.PropagationMaxElapsed,
		},
	}
}

// Provision runs the whole pipeline for publicID and reports whether it
// succeeded. Failure detail goes to the log only.
func (s *ProvisioningService) Provision(ctx context.Context, publicID string) bool {
	_, err := s.provision(ctx, publicID)
	return err == nil
}

func (s *ProvisioningService) provision(ctx context.Context, publicID string) (identity *models.Identity, err error) {
	started := time.Now()
	userName := models.DeriveUserName(publicID)
	bucket := models.BucketName(userName)
	log := s.log.With("public_id", publicID, "user_name", userName, "bucket", bucket)

	defer func() {
		s.metrics.ObserveProvision(started, err, common.StepOf(err))
		if err != nil {
			log.Error(ctx, "provisioning failed", "step", common.StepOf(err), "error", err.Error())
			return
		}
		log.Info(ctx, "provisioning completed", "arn", identity.Arn, "elapsed", time.Since(started).String())
	}()

	release, err := s.locker.Acquire(ctx, provisionLockKeyPrefix+publicID)
	if err != nil {
		return nil, common.NewStepError(StepLock, publicID, err)
	}
	defer release()

	// Fail fast on a known duplicate before any cloud resource is created.
	_, err = s.repomanager.Identities(s.db).GetByPublicID(ctx, publicID)
	switch {
	case err == nil:
		return nil, common.NewStepError(StepPrecheck, publicID, common.ErrPersistenceConflict)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, common.NewStepError(StepPrecheck, publicID, err)
	}

	userPolicy, err := policy.Render(s.userPolicyTemplate, s.substitutions(bucket, ""))
	if err != nil {
		return nil, common.NewStepError(StepRenderUserPolicy, s.userPolicyTemplate, err)
	}

	var created *iam.CreateUserOutput
	meta, err := s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
		out, err := s.iam.CreateUser(ctx, &iam.CreateUserInput{UserName: aws.String(userName)})
		if out == nil {
			return middleware.Metadata{}, err
		}
		created = out
		return out.ResultMetadata, err
	})
	if err == nil && (created == nil || created.User == nil) {
		err = fmt.Errorf("%w: empty user in response", common.ErrProviderRejected)
	}
	if err != nil {
		return nil, common.NewStepError(StepCreateUser, userName, err)
	}
	arn := aws.ToString(created.User.Arn)
	createRequestID := meta.RequestID
	log.Debug(ctx, "cloud user created", "step", StepCreateUser, "request_id", meta.RequestID, "status", meta.Status, "arn", arn)

	meta, err = s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
		out, err := s.iam.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
			UserName:       aws.String(userName),
			PolicyName:     aws.String(s.userPolicyName),
			PolicyDocument: aws.String(userPolicy),
		})
		if out == nil {
			return middleware.Metadata{}, err
		}
		return out.ResultMetadata, err
	})
	if err != nil {
		log.Debug(ctx, "rejected user policy", "policy_document", userPolicy)
		return nil, common.NewStepError(StepAttachUserPolicy, userName, err)
	}
	log.Debug(ctx, "user policy attached", "step", StepAttachUserPolicy, "request_id", meta.RequestID, "policy_name", s.userPolicyName)

	var key *iam.CreateAccessKeyOutput
	meta, err = s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
		out, err := s.iam.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(userName)})
		if out == nil {
			return middleware.Metadata{}, err
		}
		key = out
		return out.ResultMetadata, err
	})
	if err == nil && (key == nil || key.AccessKey == nil) {
		err = fmt.Errorf("%w: empty access key in response", common.ErrProviderRejected)
	}
	if err != nil {
		return nil, common.NewStepError(StepCreateAccessKey, userName, err)
	}
	log.Debug(ctx, "access key created", "step", StepCreateAccessKey, "request_id", meta.RequestID)

	meta, err = s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
		out, err := s.buckets.CreateBucket(ctx, s.createBucketInput(bucket))
		if out == nil {
			return middleware.Metadata{}, err
		}
		return out.ResultMetadata, err
	})
	if err != nil {
		return nil, common.NewStepError(StepCreateBucket, bucket, err)
	}
	log.Debug(ctx, "bucket created", "step", StepCreateBucket, "request_id", meta.RequestID)

	if err := s.hardenBucket(ctx, log, bucket, arn); err != nil {
		return nil, err
	}

	encKeyID, err := s.cipher.Encrypt(aws.ToString(key.AccessKey.AccessKeyId))
	if err != nil {
		return nil, common.NewStepError(StepEncryptCredentials, userName, fmt.Errorf("credential encryption failed: %w", err))
	}
	encSecret, err := s.cipher.Encrypt(aws.ToString(key.AccessKey.SecretAccessKey))
	if err != nil {
		return nil, common.NewStepError(StepEncryptCredentials, userName, fmt.Errorf("credential encryption failed: %w", err))
	}

	identity = &models.Identity{
		PublicID:                 publicID,
		UserName:                 aws.ToString(created.User.UserName),
		UserID:                   aws.ToString(created.User.UserId),
		CreateRequestID:          createRequestID,
		Arn:                      arn,
		EncryptedAccessKeyID:     encKeyID,
		EncryptedSecretAccessKey: encSecret,
		PolicyName:               s.userPolicyName,
		CreatedAt:                aws.ToTime(created.User.CreateDate),
	}
	if identity.UserName == "" {
		identity.UserName = userName
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Identities(tx).Create(ctx, identity)
	})
	if err != nil {
		return nil, common.NewStepError(StepPersist, publicID, err)
	}

	return identity, nil
}

// hardenBucket covers steps 7 to 9. The public access block removal and the
// bucket policy both wait out propagation lag under the retry policy.
func (s *ProvisioningService) hardenBucket(ctx context.Context, log logging.Logger, bucket, arn string) error {
	err := s.retry(ctx, log, StepWaitBucket, func(ctx context.Context) error {
		_, err := s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
			out, err := s.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
			if out == nil {
				return middleware.Metadata{}, err
			}
			return out.ResultMetadata, err
		})
		return err
	})
	if err != nil {
		return common.NewStepError(StepWaitBucket, bucket, err)
	}

	err = s.retry(ctx, log, StepRemovePublicBlock, func(ctx context.Context) error {
		_, err := s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
			out, err := s.buckets.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{Bucket: aws.String(bucket)})
			if out == nil {
				return middleware.Metadata{}, err
			}
			return out.ResultMetadata, err
		}, http.StatusOK, http.StatusNoContent)
		return err
	})
	if err != nil {
		return common.NewStepError(StepRemovePublicBlock, bucket, err)
	}
	log.Debug(ctx, "public access block removed", "step", StepRemovePublicBlock)

	bucketPolicy, err := policy.Render(s.bucketPolicyTemplate, s.substitutions(bucket, arn))
	if err != nil {
		return common.NewStepError(StepRenderBucketPolicy, s.bucketPolicyTemplate, err)
	}

	err = s.retry(ctx, log, StepAttachBucketPolicy, func(ctx context.Context) error {
		_, err := s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
			out, err := s.buckets.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
				Bucket: aws.String(bucket),
				Policy: aws.String(bucketPolicy),
			})
			if out == nil {
				return middleware.Metadata{}, err
			}
			return out.ResultMetadata, err
		}, http.StatusOK, http.StatusNoContent)
		return err
	})
	if err != nil {
		return common.NewStepError(StepAttachBucketPolicy, bucket, err)
	}
	log.Debug(ctx, "bucket policy attached", "step", StepAttachBucketPolicy)

	meta, err := s.call(ctx, func(ctx context.Context) (middleware.Metadata, error) {
		out, err := s.buckets.PutBucketCors(ctx, &s3.PutBucketCorsInput{
			Bucket:            aws.String(bucket),
			CORSConfiguration: uploadCORS(),
		})
		if out == nil {
			return middleware.Metadata{}, err
		}
		return out.ResultMetadata, err
	})
	if err != nil {
		return common.NewStepError(StepPutBucketCors, bucket, err)
	}
	log.Debug(ctx, "bucket cors set", "step", StepPutBucketCors, "request_id", meta.RequestID)

	return nil
}

// call runs one provider request under the per-call timeout and judges it by
// the reported status.
func (s *ProvisioningService) call(ctx context.Context, fn func(ctx context.Context) (middleware.Metadata, error), accepted ...int) (cloud.Meta, error) {
	cctx, cancel := cloud.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	md, err := fn(cctx)
	meta := cloud.MetaOf(md)
	return meta, cloud.Check(err, meta, accepted...)
}

// retry repeats fn while it fails with propagation lag. Any other failure
// stops the loop at once.
func (s *ProvisioningService) retry(ctx context.Context, log logging.Logger, step string, fn func(ctx context.Context) error) error {
	lagOnly := func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !cloud.IsPropagationLag(err) {
			return retryx.Permanent(err)
		}
		return err
	}
	return retryx.Do(ctx, s.propagation, lagOnly, func(attempt int, err error) {
		s.metrics.PropagationRetries.WithLabelValues(step).Inc()
		log.Warn(ctx, "waiting for bucket propagation", "step", step, "attempt", attempt, "error", err.Error())
	})
}

func (s *ProvisioningService) substitutions(bucket, arn string) map[string]string {
	subs := map[string]string{policy.ResourceName: bucket}
	if arn != "" {
		subs[policy.ResourceARN] = arn
	}
	if s.accountID != "" {
		subs[policy.AccountID] = s.accountID
	}
	return subs
}

func (s *ProvisioningService) createBucketInput(bucket string) *s3.CreateBucketInput {
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != defaultBucketRegion {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}
	return in
}

// uploadCORS allows direct browser uploads from any origin.
func uploadCORS() *s3types.CORSConfiguration {
	return &s3types.CORSConfiguration{
		CORSRules: []s3types.CORSRule{
			{
				AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
				AllowedOrigins: []string{"*"},
				AllowedHeaders: []string{"*"},
			},
		},
	}
}
