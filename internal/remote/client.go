package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
)

// RemoteClient is the registry surface as seen by an authenticated caller.
// The caller identity and the call counter are supplied by whoever serves
// the calls: a dpp-server for HTTPClient, the local workspace for a
// host.Session.
type RemoteClient interface {
	RegisterPassport(ctx context.Context, in passport.Registration) (models.TokenID, error)
	UpdateDataset(ctx context.Context, id models.TokenID, in passport.DatasetUpdate) error
	RevokePassport(ctx context.Context, id models.TokenID, reason *string) error
	Approve(ctx context.Context, to models.Address, id models.TokenID) error
	SetApprovalForAll(ctx context.Context, operator models.Address, approved bool) error
	Transfer(ctx context.Context, to models.Address, id models.TokenID) error
	TransferFrom(ctx context.Context, from, to models.Address, id models.TokenID) error

	GetPassport(ctx context.Context, id models.TokenID) (*models.PassportRecord, error)
	NextTokenID(ctx context.Context) (models.TokenID, error)
	OwnerOf(ctx context.Context, id models.TokenID) (*models.Address, error)
	BalanceOf(ctx context.Context, holder models.Address) (uint64, error)
	GetApproved(ctx context.Context, id models.TokenID) (*models.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator models.Address) (bool, error)
	GetVersion(ctx context.Context, id models.TokenID, version uint32) (*models.VersionEntry, error)
	GetVersionHistory(ctx context.Context, id models.TokenID) ([]models.VersionEntry, error)
	GetRecentVersions(ctx context.Context, id models.TokenID, limit uint32) ([]models.VersionEntry, error)
	FindTokenBySubjectID(ctx context.Context, subject models.Hash) (models.TokenID, bool, error)
}

// HTTPClient implements RemoteClient over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based remote client. token is the bearer
// JWT identifying the caller; reads work without one.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) url(format string, args ...any) string {
	return c.baseURL + "/api/v1" + fmt.Sprintf(format, args...)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody any) error {
	var body io.Reader
	headers := map[string]string{"Accept": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json"
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// absent reports whether err is the server's answer for a missing entry.
func absent(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// RegisterPassport registers a passport issued by the token's subject.
func (c *HTTPClient) RegisterPassport(ctx context.Context, in passport.Registration) (models.TokenID, error) {
	req := &RegisterRequest{
		DatasetURI:    in.Dataset.URI,
		PayloadHash:   in.Dataset.PayloadHash,
		DatasetType:   in.Dataset.Type,
		Granularity:   in.Granularity,
		SubjectIDHash: in.SubjectIDHash,
	}
	var resp RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url("/passports"), req, &resp); err != nil {
		return 0, fmt.Errorf("register passport: %w", err)
	}
	return resp.TokenID, nil
}

func (c *HTTPClient) UpdateDataset(ctx context.Context, id models.TokenID, in passport.DatasetUpdate) error {
	req := &UpdateRequest{
		DatasetURI:    in.Dataset.URI,
		PayloadHash:   in.Dataset.PayloadHash,
		DatasetType:   in.Dataset.Type,
		SubjectIDHash: in.SubjectIDHash,
	}
	if err := c.doJSON(ctx, http.MethodPut, c.url("/passports/%d/dataset", id), req, nil); err != nil {
		return fmt.Errorf("update dataset %d: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) RevokePassport(ctx context.Context, id models.TokenID, reason *string) error {
	if err := c.doJSON(ctx, http.MethodPost, c.url("/passports/%d/revoke", id), &RevokeRequest{Reason: reason}, nil); err != nil {
		return fmt.Errorf("revoke passport %d: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) Approve(ctx context.Context, to models.Address, id models.TokenID) error {
	if err := c.doJSON(ctx, http.MethodPost, c.url("/passports/%d/approve", id), &ApproveRequest{To: to}, nil); err != nil {
		return fmt.Errorf("approve %d: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) SetApprovalForAll(ctx context.Context, operator models.Address, approved bool) error {
	if err := c.doJSON(ctx, http.MethodPut, c.url("/operators/%s", operator.Hex()), &OperatorRequest{Approved: approved}, nil); err != nil {
		return fmt.Errorf("set approval for all: %w", err)
	}
	return nil
}

func (c *HTTPClient) Transfer(ctx context.Context, to models.Address, id models.TokenID) error {
	if err := c.doJSON(ctx, http.MethodPost, c.url("/passports/%d/transfer", id), &TransferRequest{To: to}, nil); err != nil {
		return fmt.Errorf("transfer %d: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) TransferFrom(ctx context.Context, from, to models.Address, id models.TokenID) error {
	req := &TransferRequest{From: &from, To: to}
	if err := c.doJSON(ctx, http.MethodPost, c.url("/passports/%d/transfer-from", id), req, nil); err != nil {
		return fmt.Errorf("transfer from %d: %w", id, err)
	}
	return nil
}

// GetPassport returns nil when the token does not exist.
func (c *HTTPClient) GetPassport(ctx context.Context, id models.TokenID) (*models.PassportRecord, error) {
	var rec models.PassportRecord
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d", id), nil, &rec); err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get passport %d: %w", id, err)
	}
	return &rec, nil
}

func (c *HTTPClient) NextTokenID(ctx context.Context) (models.TokenID, error) {
	var resp NextTokenIDResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/next-id"), nil, &resp); err != nil {
		return 0, fmt.Errorf("next token id: %w", err)
	}
	return resp.NextTokenID, nil
}

func (c *HTTPClient) OwnerOf(ctx context.Context, id models.TokenID) (*models.Address, error) {
	var resp OwnerResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d/owner", id), nil, &resp); err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("owner of %d: %w", id, err)
	}
	return &resp.Owner, nil
}

func (c *HTTPClient) BalanceOf(ctx context.Context, holder models.Address) (uint64, error) {
	var resp BalanceResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/accounts/%s/balance", holder.Hex()), nil, &resp); err != nil {
		return 0, fmt.Errorf("balance of %s: %w", holder.Hex(), err)
	}
	return resp.Balance, nil
}

func (c *HTTPClient) GetApproved(ctx context.Context, id models.TokenID) (*models.Address, error) {
	var resp ApprovedResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d/approved", id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get approved %d: %w", id, err)
	}
	return resp.Approved, nil
}

func (c *HTTPClient) IsApprovedForAll(ctx context.Context, owner, operator models.Address) (bool, error) {
	var resp OperatorResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/accounts/%s/operators/%s", owner.Hex(), operator.Hex()), nil, &resp); err != nil {
		return false, fmt.Errorf("is approved for all: %w", err)
	}
	return resp.Approved, nil
}

func (c *HTTPClient) GetVersion(ctx context.Context, id models.TokenID, version uint32) (*models.VersionEntry, error) {
	var e models.VersionEntry
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d/versions/%d", id, version), nil, &e); err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get version %d of %d: %w", version, id, err)
	}
	return &e, nil
}

func (c *HTTPClient) GetVersionHistory(ctx context.Context, id models.TokenID) ([]models.VersionEntry, error) {
	var resp VersionsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d/versions", id), nil, &resp); err != nil {
		return nil, fmt.Errorf("version history %d: %w", id, err)
	}
	return resp.Versions, nil
}

func (c *HTTPClient) GetRecentVersions(ctx context.Context, id models.TokenID, limit uint32) ([]models.VersionEntry, error) {
	q := url.Values{"limit": {strconv.FormatUint(uint64(limit), 10)}}
	var resp VersionsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/passports/%d/versions/recent?%s", id, q.Encode()), nil, &resp); err != nil {
		return nil, fmt.Errorf("recent versions %d: %w", id, err)
	}
	return resp.Versions, nil
}

func (c *HTTPClient) FindTokenBySubjectID(ctx context.Context, subject models.Hash) (models.TokenID, bool, error) {
	var resp SubjectResponse
	if err := c.doJSON(ctx, http.MethodGet, c.url("/subjects/%s", subject.Hex()), nil, &resp); err != nil {
		if absent(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find subject: %w", err)
	}
	return resp.TokenID, true, nil
}

// IssueToken asks the admin API to sign a bearer token for subject.
func IssueToken(ctx context.Context, baseURL, adminToken string, subject models.Address, ttl time.Duration) (*TokenResponse, error) {
	c := NewHTTPClient(baseURL, adminToken)
	req := &TokenRequest{Subject: subject}
	if ttl > 0 {
		req.TTL = ttl.String()
	}
	var resp TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/admin/tokens", req, &resp); err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &resp, nil
}

// RemoteError represents a structured error from the server. Registry
// failure codes unwrap to the matching passport error.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return passport.FromCode(e.Code)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}
