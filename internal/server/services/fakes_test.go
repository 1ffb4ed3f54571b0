package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/dbx"
	"github.com/dmitrijs2005/gophbucket/internal/server/models"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/identities"
)

// --- repositories ---

type fakeIdentitiesRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.Identity
	getErr    error
	createErr error
	creates   int
}

func newFakeIdentitiesRepo() *fakeIdentitiesRepo {
	return &fakeIdentitiesRepo{rows: map[string]*models.Identity{}}
}

func (r *fakeIdentitiesRepo) Create(_ context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.rows[identity.PublicID]; ok {
		return common.ErrPersistenceConflict
	}
	cp := *identity
	r.rows[identity.PublicID] = &cp
	return nil
}

func (r *fakeIdentitiesRepo) GetByPublicID(_ context.Context, publicID string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	row, ok := r.rows[publicID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeIdentitiesRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeRepoManager struct {
	identities *fakeIdentitiesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Identities(dbx.DBTX) identities.Repository   { return m.identities }

// --- cloud ---

type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) inc(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[name]++
	return c.calls[name]
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *callCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func withRequestID(id string) middleware.Metadata {
	var md middleware.Metadata
	awsmiddleware.SetRequestIDMetadata(&md, id)
	return md
}

type fakeIAM struct {
	callCounter
	createUserErr   error
	createUserBlock bool
	putPolicyErr    error
	createKeyErr    error
	lastPolicyName  string
	lastPolicyDoc   string
	lastUserName    string
	accountID       string
	accessKeyPrefix string
}

func (f *fakeIAM) CreateUser(ctx context.Context, in *iam.CreateUserInput, _ ...func(*iam.Options)) (*iam.CreateUserOutput, error) {
	f.inc("CreateUser")
	if f.createUserBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.createUserErr != nil {
		return nil, f.createUserErr
	}
	name := aws.ToString(in.UserName)
	f.lastUserName = name
	return &iam.CreateUserOutput{
		User: &iamtypes.User{
			UserName:   aws.String(name),
			UserId:     aws.String("AIDA" + strings.ToUpper(name[1:9])),
			Arn:        aws.String("arn:aws:iam::" + f.account() + ":user/" + name),
			CreateDate: aws.Time(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		},
		ResultMetadata: withRequestID("req-create-" + name),
	}, nil
}

func (f *fakeIAM) PutUserPolicy(ctx context.Context, in *iam.PutUserPolicyInput, _ ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error) {
	f.inc("PutUserPolicy")
	if f.putPolicyErr != nil {
		return nil, f.putPolicyErr
	}
	f.lastPolicyName = aws.ToString(in.PolicyName)
	f.lastPolicyDoc = aws.ToString(in.PolicyDocument)
	return &iam.PutUserPolicyOutput{}, nil
}

func (f *fakeIAM) CreateAccessKey(ctx context.Context, in *iam.CreateAccessKeyInput, _ ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	n := f.inc("CreateAccessKey")
	if f.createKeyErr != nil {
		return nil, f.createKeyErr
	}
	prefix := f.accessKeyPrefix
	if prefix == "" {
		prefix = "AKIA"
	}
	return &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			UserName:        in.UserName,
			AccessKeyId:     aws.String(prefix + strings.Repeat("X", n)),
			SecretAccessKey: aws.String("secret-" + aws.ToString(in.UserName)),
		},
	}, nil
}

func (f *fakeIAM) account() string {
	if f.accountID == "" {
		return "123456789012"
	}
	return f.accountID
}

type fakeBuckets struct {
	callCounter
	createErr error
	corsErr   error

	// headMisses and blockMisses/policyMisses make the first N calls fail
	// as if the bucket had not propagated yet.
	headMisses   int
	blockMisses  int
	policyMisses int
	// policyErr fails every PutBucketPolicy call with a non-lag error.
	policyErr error
	// headErr and blockErr fail every call with a non-lag error.
	headErr  error
	blockErr error

	lastCreate *s3.CreateBucketInput
	lastPolicy string
	lastCors   *s3.PutBucketCorsInput
}

var errNoSuchBucket error = &s3types.NoSuchBucket{Message: aws.String("bucket not yet visible")}

func (f *fakeBuckets) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.inc("CreateBucket")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastCreate = in
	return &s3.CreateBucketOutput{Location: aws.String("/" + aws.ToString(in.Bucket))}, nil
}

func (f *fakeBuckets) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	n := f.inc("HeadBucket")
	if f.headErr != nil {
		return nil, f.headErr
	}
	if n <= f.headMisses {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeBuckets) DeletePublicAccessBlock(ctx context.Context, in *s3.DeletePublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error) {
	n := f.inc("DeletePublicAccessBlock")
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	if n <= f.blockMisses {
		return nil, errNoSuchBucket
	}
	return &s3.DeletePublicAccessBlockOutput{}, nil
}

func (f *fakeBuckets) PutBucketPolicy(ctx context.Context, in *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	n := f.inc("PutBucketPolicy")
	if f.policyErr != nil {
		return nil, f.policyErr
	}
	if n <= f.policyMisses {
		return nil, errNoSuchBucket
	}
	f.lastPolicy = aws.ToString(in.Policy)
	return &s3.PutBucketPolicyOutput{}, nil
}

func (f *fakeBuckets) PutBucketCors(ctx context.Context, in *s3.PutBucketCorsInput, _ ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error) {
	f.inc("PutBucketCors")
	if f.corsErr != nil {
		return nil, f.corsErr
	}
	f.lastCors = in
	return &s3.PutBucketCorsOutput{}, nil
}

type fakePresigner struct {
	callCounter
	// failKeys lists object keys the provider refuses to sign.
	failKeys map[string]bool
	lastTTL  time.Duration
	bucket   string
}

func (f *fakePresigner) PresignPostObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error) {
	f.inc("PresignPostObject")
	opts := &s3.PresignPostOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.lastTTL = opts.Expires
	f.bucket = aws.ToString(in.Bucket)

	key := aws.ToString(in.Key)
	if f.failKeys[key] {
		return nil, errors.New("AccessDenied")
	}
	return &s3.PresignedPostRequest{
		URL: "https://" + f.bucket + ".s3.amazonaws.com",
		Values: map[string]string{
			"key":    key,
			"policy": "base64-policy",
		},
	}, nil
}

// --- lock ---

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, common.ErrLockNotAcquired
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// --- cipher ---

type failingCipher struct {
	encryptErr error
	decryptErr error
}

func (c failingCipher) Encrypt(string) (string, error) { return "", c.encryptErr }
func (c failingCipher) Decrypt(string) (string, error) { return "", c.decryptErr }
