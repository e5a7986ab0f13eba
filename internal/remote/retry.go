package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/kilupskalvis/dpp/internal/passport"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a RemoteClient with automatic retry on transient errors.
type RetryClient struct {
	inner  RemoteClient
	config *RetryConfig
}

// NewRetryClient creates a RetryClient that wraps the given RemoteClient.
func NewRetryClient(inner RemoteClient, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg}
}

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// isRateLimited returns true when the server refused the request before
// handling it, which makes a write safe to resend.
func isRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusTooManyRequests
}

// backoff computes the delay for the given attempt with jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	base := float64(rc.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rc.config.MaxBackoff) {
		base = float64(rc.config.MaxBackoff)
	}
	jitter := base * rc.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries errors accepted by retryable.
func (rc *RetryClient) retry(ctx context.Context, operation string, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt < rc.config.MaxRetries {
			d := rc.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rc.config.MaxRetries)
}

// --- Writes are not idempotent: only resent when rate limited ---

func (rc *RetryClient) RegisterPassport(ctx context.Context, in passport.Registration) (id models.TokenID, err error) {
	err = rc.retry(ctx, "register passport", isRateLimited, func() error {
		id, err = rc.inner.RegisterPassport(ctx, in)
		return err
	})
	return
}

func (rc *RetryClient) UpdateDataset(ctx context.Context, id models.TokenID, in passport.DatasetUpdate) error {
	return rc.retry(ctx, "update dataset", isRateLimited, func() error {
		return rc.inner.UpdateDataset(ctx, id, in)
	})
}

func (rc *RetryClient) RevokePassport(ctx context.Context, id models.TokenID, reason *string) error {
	return rc.retry(ctx, "revoke passport", isRateLimited, func() error {
		return rc.inner.RevokePassport(ctx, id, reason)
	})
}

func (rc *RetryClient) Approve(ctx context.Context, to models.Address, id models.TokenID) error {
	return rc.retry(ctx, "approve", isRateLimited, func() error {
		return rc.inner.Approve(ctx, to, id)
	})
}

func (rc *RetryClient) SetApprovalForAll(ctx context.Context, operator models.Address, approved bool) error {
	return rc.retry(ctx, "set approval for all", isRateLimited, func() error {
		return rc.inner.SetApprovalForAll(ctx, operator, approved)
	})
}

func (rc *RetryClient) Transfer(ctx context.Context, to models.Address, id models.TokenID) error {
	return rc.retry(ctx, "transfer", isRateLimited, func() error {
		return rc.inner.Transfer(ctx, to, id)
	})
}

func (rc *RetryClient) TransferFrom(ctx context.Context, from, to models.Address, id models.TokenID) error {
	return rc.retry(ctx, "transfer from", isRateLimited, func() error {
		return rc.inner.TransferFrom(ctx, from, to, id)
	})
}

// --- Reads retry every transient error ---

func (rc *RetryClient) GetPassport(ctx context.Context, id models.TokenID) (rec *models.PassportRecord, err error) {
	err = rc.retry(ctx, "get passport", isTransient, func() error {
		rec, err = rc.inner.GetPassport(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) NextTokenID(ctx context.Context) (id models.TokenID, err error) {
	err = rc.retry(ctx, "next token id", isTransient, func() error {
		id, err = rc.inner.NextTokenID(ctx)
		return err
	})
	return
}

func (rc *RetryClient) OwnerOf(ctx context.Context, id models.TokenID) (owner *models.Address, err error) {
	err = rc.retry(ctx, "owner of", isTransient, func() error {
		owner, err = rc.inner.OwnerOf(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) BalanceOf(ctx context.Context, holder models.Address) (n uint64, err error) {
	err = rc.retry(ctx, "balance of", isTransient, func() error {
		n, err = rc.inner.BalanceOf(ctx, holder)
		return err
	})
	return
}

func (rc *RetryClient) GetApproved(ctx context.Context, id models.TokenID) (a *models.Address, err error) {
	err = rc.retry(ctx, "get approved", isTransient, func() error {
		a, err = rc.inner.GetApproved(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) IsApprovedForAll(ctx context.Context, owner, operator models.Address) (ok bool, err error) {
	err = rc.retry(ctx, "is approved for all", isTransient, func() error {
		ok, err = rc.inner.IsApprovedForAll(ctx, owner, operator)
		return err
	})
	return
}

func (rc *RetryClient) GetVersion(ctx context.Context, id models.TokenID, version uint32) (e *models.VersionEntry, err error) {
	err = rc.retry(ctx, "get version", isTransient, func() error {
		e, err = rc.inner.GetVersion(ctx, id, version)
		return err
	})
	return
}

func (rc *RetryClient) GetVersionHistory(ctx context.Context, id models.TokenID) (entries []models.VersionEntry, err error) {
	err = rc.retry(ctx, "version history", isTransient, func() error {
		entries, err = rc.inner.GetVersionHistory(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) GetRecentVersions(ctx context.Context, id models.TokenID, limit uint32) (entries []models.VersionEntry, err error) {
	err = rc.retry(ctx, "recent versions", isTransient, func() error {
		entries, err = rc.inner.GetRecentVersions(ctx, id, limit)
		return err
	})
	return
}

func (rc *RetryClient) FindTokenBySubjectID(ctx context.Context, subject models.Hash) (id models.TokenID, ok bool, err error) {
	err = rc.retry(ctx, "find subject", isTransient, func() error {
		id, ok, err = rc.inner.FindTokenBySubjectID(ctx, subject)
		return err
	})
	return
}
