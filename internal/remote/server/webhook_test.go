package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilupskalvis/dpp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookNotifier_NilConfig(t *testing.T) {
	wn := NewWebhookNotifier(nil, slog.Default())
	assert.Nil(t, wn)
}

func TestNewWebhookNotifier_EmptyURLs(t *testing.T) {
	wn := NewWebhookNotifier(&WebhookConfig{URLs: nil}, slog.Default())
	assert.Nil(t, wn)
}

func TestWebhookNotifier_Notify_NilReceiver(t *testing.T) {
	// Should not panic
	var wn *WebhookNotifier
	wn.Notify(context.Background(), models.Event{Type: models.EventTransfer})
	wn.Wait()
}

func TestWebhookNotifier_Notify(t *testing.T) {
	var mu sync.Mutex
	var received []WebhookEvent

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, slog.Default())
	require.NotNil(t, wn)

	to := common.HexToAddress("0xb0b")
	wn.Notify(context.Background(), models.Event{
		Type:     models.EventTransfer,
		Transfer: &models.Transfer{To: to, TokenID: 7},
	})
	wn.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, models.EventTransfer, received[0].Event)
	assert.Len(t, received[0].ID, 26)
	require.NotNil(t, received[0].TokenID)
	assert.Equal(t, models.TokenID(7), *received[0].TokenID)
	require.NotNil(t, received[0].Data.Transfer)
	assert.Nil(t, received[0].Data.Transfer.From)
	assert.Equal(t, to, received[0].Data.Transfer.To)
	assert.NotEmpty(t, received[0].Timestamp)
}

func TestWebhookNotifier_Notify_OperatorEventHasNoToken(t *testing.T) {
	var got WebhookEvent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, slog.Default())
	wn.Notify(context.Background(), models.Event{
		Type:           models.EventApprovalForAll,
		ApprovalForAll: &models.ApprovalForAll{Approved: true},
	})
	wn.Wait()

	assert.Equal(t, models.EventApprovalForAll, got.Event)
	assert.Nil(t, got.TokenID)
}

func TestWebhookNotifier_Notify_MultipleURLs(t *testing.T) {
	var mu sync.Mutex
	callCount := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		callCount++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	ts1 := httptest.NewServer(handler)
	defer ts1.Close()
	ts2 := httptest.NewServer(handler)
	defer ts2.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts1.URL, ts2.URL}}, slog.Default())
	require.NotNil(t, wn)

	wn.Notify(context.Background(), models.Event{Type: models.EventApproval, Approval: &models.Approval{TokenID: 1}})
	wn.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, callCount)
}

func TestWebhookNotifier_Post_4xxNoRetry(t *testing.T) {
	callCount := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, slog.Default())
	require.NotNil(t, wn)

	err := wn.post(ts.URL, []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, 1, callCount) // no retry for 4xx
}

func TestWebhookNotifier_Post_5xxRetried(t *testing.T) {
	callCount := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, slog.Default())
	wn.backoff = time.Millisecond

	require.NoError(t, wn.post(ts.URL, []byte(`{}`)))
	assert.Equal(t, 3, callCount)
}
