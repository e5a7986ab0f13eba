package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilupskalvis/dpp/internal/host"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/kilupskalvis/dpp/internal/remote"
	"github.com/kilupskalvis/dpp/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "admin-secret"

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

type testServer struct {
	*httptest.Server
	tokens  *TokenIssuer
	cleanup func()
}

func setupTestServer(t *testing.T, cfg *ServerConfig) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	reg := passport.New(st)

	tokens, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	if cfg == nil {
		cfg = DefaultServerConfig()
		cfg.RequestsPerSecond = 0
	}
	cfg.AdminToken = testAdminToken
	cfg.Tokens = tokens

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler, cleanup := Handler(reg, host.NewSequencer(st), cfg, logger)
	ts := httptest.NewServer(handler)
	t.Cleanup(func() {
		ts.Close()
		cleanup()
	})
	return &testServer{Server: ts, tokens: tokens, cleanup: cleanup}
}

// clientFor returns a client authenticated as who.
func (ts *testServer) clientFor(t *testing.T, who models.Address) *remote.HTTPClient {
	t.Helper()
	token, _, err := ts.tokens.Issue(who, 0)
	require.NoError(t, err)
	return remote.NewHTTPClient(ts.URL, token)
}

func (ts *testServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func sampleRegistration(uri string) passport.Registration {
	return passport.Registration{
		Dataset: models.Dataset{
			URI:         uri,
			PayloadHash: common.HexToHash("0xfeed"),
			Type:        "application/vc+jwt",
		},
		Granularity: models.GranularityItem,
	}
}

func TestHealthz(t *testing.T) {
	ts := setupTestServer(t, nil)
	status, body := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestReadyz(t *testing.T) {
	ts := setupTestServer(t, nil)
	status, _ := ts.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, status)

	ts.cleanup()
	status, body := ts.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "shutting down")
}

func TestWriteRequiresToken(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	anon := remote.NewHTTPClient(ts.URL, "")
	_, err := anon.RegisterPassport(ctx, sampleRegistration("ipfs://a"))
	var re *remote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "auth_failed", re.Code)

	forged := remote.NewHTTPClient(ts.URL, "not-a-jwt")
	_, err = forged.RegisterPassport(ctx, sampleRegistration("ipfs://a"))
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	// Nothing was registered
	next, err := anon.NextTokenID(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TokenID(0), next)
}

func TestPassportLifecycleOverHTTP(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()
	ac := ts.clientFor(t, alice)

	subject := common.HexToHash("0x5b")
	in := sampleRegistration("ipfs://v1")
	in.SubjectIDHash = &subject
	id, err := ac.RegisterPassport(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.TokenID(0), id)

	rec, err := ac.GetPassport(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, alice, rec.Issuer)
	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Equal(t, uint32(1), rec.Version)
	assert.Equal(t, models.GranularityItem, rec.Granularity)

	require.NoError(t, ac.UpdateDataset(ctx, id, passport.DatasetUpdate{
		Dataset: models.Dataset{URI: "ipfs://v2", PayloadHash: common.HexToHash("0xbeef"), Type: "application/vc+jwt"},
	}))

	history, err := ac.GetVersionHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ipfs://v1", history[0].DatasetURI)
	assert.Equal(t, "ipfs://v2", history[1].DatasetURI)

	recent, err := ac.GetRecentVersions(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, uint32(2), recent[0].Version)

	v1, err := ac.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.Equal(t, alice, v1.UpdatedBy)

	missing, err := ac.GetVersion(ctx, id, 3)
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, ok, err := ac.FindTokenBySubjectID(ctx, subject)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, found)

	_, ok, err = ac.FindTokenBySubjectID(ctx, common.HexToHash("0xdead"))
	require.NoError(t, err)
	assert.False(t, ok)

	reason := "superseded"
	require.NoError(t, ac.RevokePassport(ctx, id, &reason))
	err = ac.RevokePassport(ctx, id, nil)
	assert.ErrorIs(t, err, passport.ErrAlreadyRevoked)

	err = ac.UpdateDataset(ctx, id, passport.DatasetUpdate{
		Dataset: models.Dataset{URI: "ipfs://v3", Type: "application/vc+jwt"},
	})
	assert.ErrorIs(t, err, passport.ErrPassportRevoked)
}

func TestOwnershipOverHTTP(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()
	ac := ts.clientFor(t, alice)
	bc := ts.clientFor(t, bob)

	id, err := ac.RegisterPassport(ctx, sampleRegistration("ipfs://a"))
	require.NoError(t, err)

	// Bob may not move it yet
	err = bc.TransferFrom(ctx, alice, carol, id)
	assert.ErrorIs(t, err, passport.ErrNotApproved)

	err = ac.Approve(ctx, alice, id)
	assert.ErrorIs(t, err, passport.ErrNotAllowed)

	require.NoError(t, ac.Approve(ctx, bob, id))
	approved, err := bc.GetApproved(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, bob, *approved)

	require.NoError(t, bc.TransferFrom(ctx, alice, carol, id))

	owner, err := bc.OwnerOf(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, carol, *owner)

	approved, err = bc.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, approved)

	n, err := bc.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	n, err = bc.BalanceOf(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	require.NoError(t, ac.SetApprovalForAll(ctx, bob, true))
	ok, err := bc.IsApprovedForAll(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	err = ac.Transfer(ctx, bob, id)
	assert.ErrorIs(t, err, passport.ErrNotOwner)

	unknown, err := bc.OwnerOf(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, unknown)

	_, err = bc.RegisterPassport(ctx, passport.Registration{Granularity: models.GranularityBatch})
	assert.ErrorIs(t, err, passport.ErrInvalidInput)
}

func TestVersionListsAreNeverNull(t *testing.T) {
	ts := setupTestServer(t, nil)

	status, body := ts.get(t, "/api/v1/passports/9/versions")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"versions":[]`)

	status, body = ts.get(t, "/api/v1/passports/9/versions/recent?limit=0")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"versions":[]`)
}

func TestMalformedPaths(t *testing.T) {
	ts := setupTestServer(t, nil)

	for _, path := range []string{
		"/api/v1/passports/abc",
		"/api/v1/passports/-1/owner",
		"/api/v1/passports/0/versions/x",
		"/api/v1/passports/0/versions/recent?limit=-2",
		"/api/v1/accounts/bob/balance",
		"/api/v1/subjects/0x1234",
	} {
		status, body := ts.get(t, path)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Contains(t, body, "bad_request", path)
	}

	status, body := ts.get(t, "/api/v1/passports/5")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "not_found")
}

func TestAdminIssueToken(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	_, err := remote.IssueToken(ctx, ts.URL, "wrong", alice, time.Minute)
	var re *remote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	resp, err := remote.IssueToken(ctx, ts.URL, testAdminToken, alice, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, alice, resp.Subject)
	assert.NotEmpty(t, resp.ExpiresAt)

	caller, err := ts.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, alice, caller)

	ac := remote.NewHTTPClient(ts.URL, resp.Token)
	id, err := ac.RegisterPassport(ctx, sampleRegistration("ipfs://a"))
	require.NoError(t, err)
	rec, err := ac.GetPassport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, rec.Issuer)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RequestsPerSecond = 1
	cfg.Burst = 2
	ts := setupTestServer(t, cfg)

	var statuses []int
	for range 4 {
		status, _ := ts.get(t, "/api/v1/passports/next-id")
		statuses = append(statuses, status)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])

	// Health checks are not limited
	status, _ := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetrics(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()
	ac := ts.clientFor(t, alice)

	_, err := ac.RegisterPassport(ctx, sampleRegistration("ipfs://a"))
	require.NoError(t, err)
	err = ac.Transfer(ctx, bob, 3)
	require.Error(t, err)

	status, body := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `dpp_registry_calls_total{op="register_passport",result="ok"} 1`)
	assert.Contains(t, body, `dpp_registry_calls_total{op="transfer",result="token_not_found"} 1`)
	assert.True(t, strings.Contains(body, "dpp_http_requests_total"))
}
