package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gophbucket/internal/dbx"
	"github.com/dmitrijs2005/gophbucket/internal/server/cloud"
	"github.com/dmitrijs2005/gophbucket/internal/server/config"
	"github.com/dmitrijs2005/gophbucket/internal/server/lock"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/identities"
	"github.com/dmitrijs2005/gophbucket/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepoManager struct {
	migrateErr error
	migrated   bool
}

func (s *stubRepoManager) RunMigrations(context.Context, *sql.DB) error {
	s.migrated = true
	return s.migrateErr
}

func (s *stubRepoManager) Identities(db dbx.DBTX) identities.Repository {
	return identities.NewPostgresRepository(db)
}

type appSeams struct {
	rm      *stubRepoManager
	mock    sqlmock.Sqlmock
	openErr error
	awsErr  error
}

func installSeams(t *testing.T, s *appSeams) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s.mock = mock
	if s.rm == nil {
		s.rm = &stubRepoManager{}
	}

	origOpen, origClients, origRM := sqlOpen, newCloudClients, newRepoManager
	t.Cleanup(func() {
		sqlOpen, newCloudClients, newRepoManager = origOpen, origClients, origRM
		_ = db.Close()
	})

	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if s.openErr != nil {
			return nil, s.openErr
		}
		return db, nil
	}
	newCloudClients = func(ctx context.Context, st cloud.Settings, id, secret string) (*cloud.Clients, error) {
		if s.awsErr != nil {
			return nil, s.awsErr
		}
		return &cloud.Clients{}, nil
	}
	newRepoManager = func() repomanager.RepositoryManager { return s.rm }
}

func testAppConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.LogFormat = "console"
	c.LogLevel = "error"
	return c
}

func TestNewApp_Success(t *testing.T) {
	s := &appSeams{}
	installSeams(t, s)

	app, err := NewApp(testAppConfig())
	require.NoError(t, err)
	assert.True(t, s.rm.migrated)
	assert.Nil(t, app.redis)

	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNewApp_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		seams *appSeams
		cfg   func(*config.Config)
		want  string
	}{
		{name: "open", seams: &appSeams{openErr: boom}, want: "db init error"},
		{name: "migrate", seams: &appSeams{rm: &stubRepoManager{migrateErr: boom}}, want: "db migration error"},
		{name: "cloud", seams: &appSeams{awsErr: boom}, want: "cloud init error"},
		{
			name:  "bad cipher key",
			seams: &appSeams{},
			cfg:   func(c *config.Config) { c.CipherKey = "!!" },
			want:  "cipher init error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installSeams(t, tt.seams)
			c := testAppConfig()
			if tt.cfg != nil {
				tt.cfg(c)
			}
			_, err := NewApp(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildCipher(t *testing.T) {
	c := &config.Config{CipherPassphrase: "pass", CipherSalt: "salt"}
	derived, err := buildCipher(c)
	require.NoError(t, err)
	enc, err := derived.Encrypt("AKIA")
	require.NoError(t, err)

	again, err := buildCipher(c)
	require.NoError(t, err)
	got, err := again.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "AKIA", got)

	c.CipherKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	explicit, err := buildCipher(c)
	require.NoError(t, err)
	_, err = explicit.Decrypt(enc)
	assert.Error(t, err, "explicit key wins over the passphrase")

	_, err = buildCipher(&config.Config{})
	assert.Error(t, err)
}

func TestBuildLocker(t *testing.T) {
	rc, l := buildLocker(&config.Config{})
	assert.Nil(t, rc)
	assert.IsType(t, lock.Noop{}, l)

	rc, l = buildLocker(&config.Config{RedisAddr: "127.0.0.1:0", LockTTL: time.Minute})
	require.NotNil(t, rc)
	defer rc.Close()
	assert.IsType(t, &lock.RedisLocker{}, l)
}

func TestBuildLocker_TTLCoversProvisionBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	c := testAppConfig()
	c.RedisAddr = mr.Addr()
	c.LockTTL = time.Second

	rc, l := buildLocker(c)
	require.NotNil(t, rc)
	defer rc.Close()

	release, err := l.Acquire(context.Background(), "abc")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, c.ProvisionBudget(), mr.TTL("gophbucket:lock:abc"))
}

func TestRun_StopsOnContextDone(t *testing.T) {
	s := &appSeams{}
	installSeams(t, s)
	s.mock.ExpectClose()

	app, err := NewApp(testAppConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the context was cancelled")
	}
	assert.NoError(t, s.mock.ExpectationsWereMet())
}
