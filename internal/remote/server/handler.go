package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kilupskalvis/dpp/internal/host"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
	"github.com/kilupskalvis/dpp/internal/remote"
	"go.uber.org/atomic"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64        // bytes, for JSON endpoints
	RequestsPerSecond float64      // per-client rate limit, 0 disables
	Burst             int          // per-client burst, defaults to the rate
	AdminToken        string       // for admin endpoints
	Tokens            *TokenIssuer // verifies caller tokens, nil rejects every write
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    1 << 20, // 1MB
		RequestsPerSecond: 10,
	}
}

const defaultRecentLimit = 10

// api carries what the route handlers share.
type api struct {
	reg     *passport.Registry
	counter host.Counter
	cfg     *ServerConfig
	logger  *slog.Logger
	metrics *metrics
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines, marks the
// server not ready, and should be called on server shutdown.
func Handler(reg *passport.Registry, counter host.Counter, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = DefaultServerConfig().MaxRequestBody
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &api{reg: reg, counter: counter, cfg: cfg, logger: logger, metrics: newMetrics()}
	ready := atomic.NewBool(true)
	rl := newRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	auth := authMiddleware(cfg.Tokens, logger)

	// applyMiddleware reverses the list, so the last item runs outermost (first).
	// Execution order: rl -> handler
	public := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, rl.middleware)
	}
	// Execution order: auth -> rl -> handler
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: shutting down"))
			return
		}
		if _, err := reg.NextTokenID(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", a.metrics.handler())

	// Admin endpoints
	if cfg.AdminToken != "" && cfg.Tokens != nil {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("POST /admin/tokens", makeAdminIssueTokenHandler(cfg.Tokens, logger))
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Writes
	mux.Handle("POST /api/v1/passports", withAuth(a.withCall("register_passport", a.handleRegister)))
	mux.Handle("PUT /api/v1/passports/{id}/dataset", withAuth(a.withCall("update_dataset", a.handleUpdate)))
	mux.Handle("POST /api/v1/passports/{id}/revoke", withAuth(a.withCall("revoke_passport", a.handleRevoke)))
	mux.Handle("POST /api/v1/passports/{id}/approve", withAuth(a.withCall("approve", a.handleApprove)))
	mux.Handle("POST /api/v1/passports/{id}/transfer", withAuth(a.withCall("transfer", a.handleTransfer)))
	mux.Handle("POST /api/v1/passports/{id}/transfer-from", withAuth(a.withCall("transfer_from", a.handleTransferFrom)))
	mux.Handle("PUT /api/v1/operators/{operator}", withAuth(a.withCall("set_approval_for_all", a.handleSetOperator)))

	// Reads
	mux.Handle("GET /api/v1/passports/next-id", public(a.handleNextTokenID))
	mux.Handle("GET /api/v1/passports/{id}", public(a.handleGetPassport))
	mux.Handle("GET /api/v1/passports/{id}/owner", public(a.handleOwnerOf))
	mux.Handle("GET /api/v1/passports/{id}/approved", public(a.handleGetApproved))
	mux.Handle("GET /api/v1/passports/{id}/versions", public(a.handleVersionHistory))
	mux.Handle("GET /api/v1/passports/{id}/versions/recent", public(a.handleRecentVersions))
	mux.Handle("GET /api/v1/passports/{id}/versions/{version}", public(a.handleGetVersion))
	mux.Handle("GET /api/v1/accounts/{holder}/balance", public(a.handleBalanceOf))
	mux.Handle("GET /api/v1/accounts/{owner}/operators/{operator}", public(a.handleIsApprovedForAll))
	mux.Handle("GET /api/v1/subjects/{hash}", public(a.handleFindSubject))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
		a.metrics.instrument,
	)

	cleanup := func() {
		ready.Store(false)
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type callHandlerFunc func(w http.ResponseWriter, r *http.Request, call passport.Call) error

// withCall stamps the request with the authenticated caller and the next
// counter value, runs fn, and maps its error to a response.
func (a *api) withCall(op string, fn callHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "auth_failed", "message": "no caller"})
			return
		}
		call, err := host.NewCall(r.Context(), a.counter, caller)
		if err != nil {
			a.logger.Error("counter", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		err = fn(w, r, call)
		var bad *badRequest
		if errors.As(err, &bad) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": bad.msg})
			return
		}
		a.metrics.observeCall(op, err)
		if err != nil {
			a.writeError(w, op, err)
		}
	}
}

// badRequest is a malformed request, rejected before it reaches the registry.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

var errorStatus = map[string]int{
	"token_not_found":  http.StatusNotFound,
	"invalid_input":    http.StatusBadRequest,
	"unauthorized":     http.StatusForbidden,
	"not_owner":        http.StatusForbidden,
	"not_approved":     http.StatusForbidden,
	"not_allowed":      http.StatusForbidden,
	"passport_revoked": http.StatusConflict,
	"already_revoked":  http.StatusConflict,
}

// writeError renders a registry failure under its machine code.
func (a *api) writeError(w http.ResponseWriter, op string, err error) {
	code := passport.Code(err)
	status, ok := errorStatus[code]
	if !ok {
		a.logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
		return
	}
	writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": msg})
}

func pathTokenID(r *http.Request) (models.TokenID, error) {
	raw := r.PathValue("id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid token id %q", raw)
	}
	return models.TokenID(n), nil
}

func pathAddress(r *http.Request, name string) (models.Address, error) {
	a, err := models.ParseAddress(r.PathValue(name))
	if err != nil {
		return models.Address{}, badRequestf("%s: %v", name, err)
	}
	return a, nil
}

// --- Write Handlers ---

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	var req remote.RegisterRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	id, err := a.reg.Register(r.Context(), call, passport.Registration{
		Dataset: models.Dataset{
			URI:         req.DatasetURI,
			PayloadHash: req.PayloadHash,
			Type:        req.DatasetType,
		},
		Granularity:   req.Granularity,
		SubjectIDHash: req.SubjectIDHash,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, &remote.RegisterResponse{TokenID: id})
	return nil
}

func (a *api) handleUpdate(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	id, err := pathTokenID(r)
	if err != nil {
		return err
	}
	var req remote.UpdateRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	err = a.reg.UpdateDataset(r.Context(), call, id, passport.DatasetUpdate{
		Dataset: models.Dataset{
			URI:         req.DatasetURI,
			PayloadHash: req.PayloadHash,
			Type:        req.DatasetType,
		},
		SubjectIDHash: req.SubjectIDHash,
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) handleRevoke(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	id, err := pathTokenID(r)
	if err != nil {
		return err
	}
	var req remote.RevokeRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	if err := a.reg.RevokePassport(r.Context(), call, id, req.Reason); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) handleApprove(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	id, err := pathTokenID(r)
	if err != nil {
		return err
	}
	var req remote.ApproveRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	if err := a.reg.Approve(r.Context(), call, req.To, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) handleTransfer(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	id, err := pathTokenID(r)
	if err != nil {
		return err
	}
	var req remote.TransferRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	if err := a.reg.Transfer(r.Context(), call, req.To, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) handleTransferFrom(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	id, err := pathTokenID(r)
	if err != nil {
		return err
	}
	var req remote.TransferRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	if req.From == nil {
		return badRequestf("from is required")
	}
	if err := a.reg.TransferFrom(r.Context(), call, *req.From, req.To, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) handleSetOperator(w http.ResponseWriter, r *http.Request, call passport.Call) error {
	operator, err := pathAddress(r, "operator")
	if err != nil {
		return err
	}
	var req remote.OperatorRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		return badRequestf("%v", err)
	}
	if err := a.reg.SetApprovalForAll(r.Context(), call, operator, req.Approved); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// --- Read Handlers ---

// read reports whether err is nil, writing the error response otherwise.
func (a *api) read(w http.ResponseWriter, op string, err error) bool {
	if err == nil {
		return true
	}
	var bad *badRequest
	if errors.As(err, &bad) {
		writeBadRequest(w, bad)
		return false
	}
	a.writeError(w, op, err)
	return false
}

func (a *api) handleNextTokenID(w http.ResponseWriter, r *http.Request) {
	next, err := a.reg.NextTokenID(r.Context())
	if !a.read(w, "next_token_id", err) {
		return
	}
	writeJSON(w, http.StatusOK, &remote.NextTokenIDResponse{NextTokenID: next})
}

func (a *api) handleGetPassport(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "get_passport", err) {
		return
	}
	rec, err := a.reg.GetPassport(r.Context(), id)
	if !a.read(w, "get_passport", err) {
		return
	}
	if rec == nil {
		writeNotFound(w, fmt.Sprintf("passport %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) handleOwnerOf(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "owner_of", err) {
		return
	}
	owner, err := a.reg.OwnerOf(r.Context(), id)
	if !a.read(w, "owner_of", err) {
		return
	}
	if owner == nil {
		writeNotFound(w, fmt.Sprintf("passport %d has no owner", id))
		return
	}
	writeJSON(w, http.StatusOK, &remote.OwnerResponse{TokenID: id, Owner: *owner})
}

func (a *api) handleGetApproved(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "get_approved", err) {
		return
	}
	approved, err := a.reg.GetApproved(r.Context(), id)
	if !a.read(w, "get_approved", err) {
		return
	}
	writeJSON(w, http.StatusOK, &remote.ApprovedResponse{TokenID: id, Approved: approved})
}

func (a *api) handleVersionHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "get_version_history", err) {
		return
	}
	versions, err := a.reg.GetVersionHistory(r.Context(), id)
	if !a.read(w, "get_version_history", err) {
		return
	}
	writeVersions(w, id, versions)
}

func (a *api) handleRecentVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "get_recent_versions", err) {
		return
	}
	limit := uint64(defaultRecentLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}
	versions, err := a.reg.GetRecentVersions(r.Context(), id, uint32(limit))
	if !a.read(w, "get_recent_versions", err) {
		return
	}
	writeVersions(w, id, versions)
}

func writeVersions(w http.ResponseWriter, id models.TokenID, versions []models.VersionEntry) {
	if versions == nil {
		versions = []models.VersionEntry{}
	}
	writeJSON(w, http.StatusOK, &remote.VersionsResponse{TokenID: id, Versions: versions})
}

func (a *api) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if !a.read(w, "get_version", err) {
		return
	}
	raw := r.PathValue("version")
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid version %q", raw))
		return
	}
	e, err := a.reg.GetVersion(r.Context(), id, uint32(v))
	if !a.read(w, "get_version", err) {
		return
	}
	if e == nil {
		writeNotFound(w, fmt.Sprintf("version %d of passport %d not found", v, id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *api) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	holder, err := pathAddress(r, "holder")
	if !a.read(w, "balance_of", err) {
		return
	}
	n, err := a.reg.BalanceOf(r.Context(), holder)
	if !a.read(w, "balance_of", err) {
		return
	}
	writeJSON(w, http.StatusOK, &remote.BalanceResponse{Holder: holder, Balance: n})
}

func (a *api) handleIsApprovedForAll(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if !a.read(w, "is_approved_for_all", err) {
		return
	}
	operator, err := pathAddress(r, "operator")
	if !a.read(w, "is_approved_for_all", err) {
		return
	}
	ok, err := a.reg.IsApprovedForAll(r.Context(), owner, operator)
	if !a.read(w, "is_approved_for_all", err) {
		return
	}
	writeJSON(w, http.StatusOK, &remote.OperatorResponse{Owner: owner, Operator: operator, Approved: ok})
}

func (a *api) handleFindSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := models.ParseHash(r.PathValue("hash"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	id, found, err := a.reg.FindTokenBySubjectID(r.Context(), subject)
	if !a.read(w, "find_token_by_subject_id", err) {
		return
	}
	if !found {
		writeNotFound(w, "no passport for subject")
		return
	}
	writeJSON(w, http.StatusOK, &remote.SubjectResponse{SubjectIDHash: subject, TokenID: id})
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Admin Auth ---

func adminAuth(adminToken string, next http.Handler) http.Handler {
	expected := "Bearer " + adminToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "auth_failed", "message": "invalid admin token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// --- Admin Token Handlers ---

func makeAdminIssueTokenHandler(tokens *TokenIssuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req remote.TokenRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "invalid JSON"})
			return
		}
		if req.Subject == (models.Address{}) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "subject is required"})
			return
		}
		var ttl time.Duration
		if req.TTL != "" {
			d, err := time.ParseDuration(req.TTL)
			if err != nil || d <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "ttl must be a positive duration"})
				return
			}
			ttl = d
		}

		token, exp, err := tokens.Issue(req.Subject, ttl)
		if err != nil {
			logger.Error("issue token", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}
		logger.Info("token issued", "subject", req.Subject.Hex(), "expires_at", exp)

		writeJSON(w, http.StatusCreated, &remote.TokenResponse{
			Token:     token,
			Subject:   req.Subject,
			ExpiresAt: exp.Format(time.RFC3339),
		})
	}
}
