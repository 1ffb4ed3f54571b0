package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/client/client"
	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	pingErr      error
	provisionErr error
	detailsErr   error
	urlsErr      error

	identity *client.Identity
	urls     []client.UploadURL

	gotToken    string
	gotPublicID string
	gotObjects  []string
}

func (f *fakeAPI) Ping(context.Context) error { return f.pingErr }

func (f *fakeAPI) Provision(_ context.Context, token, publicID string) error {
	f.gotToken, f.gotPublicID = token, publicID
	return f.provisionErr
}

func (f *fakeAPI) Details(_ context.Context, token string) (*client.Identity, error) {
	f.gotToken = token
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.identity, nil
}

func (f *fakeAPI) UploadURLs(_ context.Context, token string, objects []string) ([]client.UploadURL, error) {
	f.gotToken, f.gotObjects = token, objects
	if f.urlsErr != nil {
		return nil, f.urlsErr
	}
	return f.urls, nil
}

// captureOutput swaps printlnFn and returns a buffer holding every line.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) { return fmt.Fprintln(&buf, a...) }
	t.Cleanup(func() { printlnFn = orig })

	oldLog := log.Default().Writer()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(oldLog) })
	return &buf
}

func stubToken(t *testing.T, token string, err error) {
	t.Helper()
	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte(token), err }
	t.Cleanup(func() { readPassword = orig })
}

func newTestApp(api *fakeAPI, input string) *App {
	return &App{api: api, reader: bufio.NewReader(strings.NewReader(input)), out: io.Discard}
}

func TestStatus(t *testing.T) {
	out := captureOutput(t)
	api := &fakeAPI{}
	app := newTestApp(api, "")

	require.NoError(t, app.Status(context.Background()))
	assert.Equal(t, ModeOnline, app.Mode)
	assert.Contains(t, out.String(), "Server is running")

	api.pingErr = client.ErrUnavailable
	require.Error(t, app.Status(context.Background()))
	assert.Equal(t, ModeOffline, app.Mode)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		readErr    error
		detailsErr error
		wantErr    bool
		wantToken  string
	}{
		{name: "provisioned caller", token: "tok", wantToken: "tok"},
		{name: "caller without identity", token: "tok", detailsErr: common.ErrorNotFound, wantToken: "tok"},
		{name: "rejected token", token: "bad", detailsErr: common.ErrorUnauthorized, wantErr: true},
		{name: "empty token", token: "  ", wantErr: true},
		{name: "terminal error", readErr: errors.New("no tty"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureOutput(t)
			stubToken(t, tt.token, tt.readErr)
			app := newTestApp(&fakeAPI{identity: &client.Identity{}, detailsErr: tt.detailsErr}, "")

			err := app.Login(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, app.isLoggedIn())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, app.token)
		})
	}
}

func TestProvision_ShowsIdentity(t *testing.T) {
	out := captureOutput(t)
	api := &fakeAPI{identity: &client.Identity{
		PublicID:  "11111111-1111-4111-8111-111111111111",
		UserName:  "Z11111111111141118111111111111111",
		Bucket:    "z11111111111141118111111111111111",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}
	app := newTestApp(api, "")
	app.token = "tok"

	require.NoError(t, app.Provision(context.Background(), []string{"11111111-1111-4111-8111-111111111111"}))
	assert.Equal(t, "tok", api.gotToken)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", api.gotPublicID)
	assert.Contains(t, out.String(), "Identity provisioned")
	assert.Contains(t, out.String(), "bucket:     z11111111111141118111111111111111")
	assert.Contains(t, out.String(), "2024-05-01 10:00:00")
}

func TestProvision_Failure(t *testing.T) {
	out := captureOutput(t)
	api := &fakeAPI{provisionErr: client.ErrUnavailable}
	app := newTestApp(api, "")
	app.token = "tok"

	require.ErrorIs(t, app.Provision(context.Background(), nil), client.ErrUnavailable)
	assert.Empty(t, api.gotPublicID)
	assert.Contains(t, out.String(), "Provisioning failed")
}

func TestShow_NotProvisioned(t *testing.T) {
	out := captureOutput(t)
	app := newTestApp(&fakeAPI{detailsErr: common.ErrorNotFound}, "")
	app.token = "tok"

	require.ErrorIs(t, app.Show(context.Background()), common.ErrorNotFound)
	assert.Contains(t, out.String(), "No identity provisioned yet")
}

func TestURLs_FromArgs(t *testing.T) {
	out := captureOutput(t)
	api := &fakeAPI{urls: []client.UploadURL{
		{ObjectID: "a.jpg", URL: "https://bucket.s3", Fields: map[string]string{"key": "a.jpg", "policy": "p"}},
	}}
	app := newTestApp(api, "")
	app.token = "tok"

	require.NoError(t, app.URLs(context.Background(), []string{"a.jpg", "b.jpg"}))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, api.gotObjects)

	got := out.String()
	assert.Contains(t, got, "a.jpg -> https://bucket.s3")
	assert.Less(t, strings.Index(got, "key=a.jpg"), strings.Index(got, "policy=p"), "fields are printed sorted")
	assert.Contains(t, got, "1 of 2 objects could not be authorized")
}

func TestURLs_FromPrompt(t *testing.T) {
	captureOutput(t)
	api := &fakeAPI{}
	app := newTestApp(api, "x.png\ny.png\n\n")
	app.token = "tok"

	require.NoError(t, app.URLs(context.Background(), nil))
	assert.Equal(t, []string{"x.png", "y.png"}, api.gotObjects)
}

func TestURLs_NothingEntered(t *testing.T) {
	out := captureOutput(t)
	api := &fakeAPI{}
	app := newTestApp(api, "\n")
	app.token = "tok"

	require.NoError(t, app.URLs(context.Background(), nil))
	assert.Nil(t, api.gotObjects)
	assert.Contains(t, out.String(), "No object names given")
}

func TestURLs_NotProvisioned(t *testing.T) {
	out := captureOutput(t)
	app := newTestApp(&fakeAPI{urlsErr: common.ErrorNotFound}, "")
	app.token = "tok"

	require.ErrorIs(t, app.URLs(context.Background(), []string{"a"}), common.ErrorNotFound)
	assert.Contains(t, out.String(), "No identity provisioned yet")
}

func TestLogout(t *testing.T) {
	captureOutput(t)
	app := newTestApp(&fakeAPI{}, "")
	app.token = "tok"
	require.NoError(t, app.Logout(context.Background()))
	assert.False(t, app.isLoggedIn())
}
