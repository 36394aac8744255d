package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/ticket-storefront/pkg/breaker"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSender(t *testing.T, url string) *HTTPEmailSender {
	t.Helper()
	s, err := NewHTTPEmailSender(&HTTPEmailSenderConfig{
		BaseURL: url,
		APIKey:  "secret",
		Timeout: time.Second,
		Breaker: &breaker.Config{Name: "test", Timeout: time.Minute, ConsecutiveFailures: 2},
	})
	require.NoError(t, err)
	return s
}

func TestNewHTTPEmailSender_RequiresURL(t *testing.T) {
	_, err := NewHTTPEmailSender(&HTTPEmailSenderConfig{})
	assert.Error(t, err)
}

func TestSend_PostsTemplate(t *testing.T) {
	var got SendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"m-1"}`))
	}))
	defer srv.Close()

	err := newSender(t, srv.URL).Send(context.Background(), "confirmed", "TS-ABCDEFGHJKMN", "maria@example.com")

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "sale-confirmed", got.Template)
	assert.Equal(t, "maria@example.com", got.To)
	assert.Equal(t, "TS-ABCDEFGHJKMN", got.Data["sale_code"])
	assert.Equal(t, "confirmed:TS-ABCDEFGHJKMN", got.IdempotencyKey)
}

func TestSend_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newSender(t, srv.URL).Send(context.Background(), "created", "TS-X", "bad")

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestSend_ServerErrorIsRetryableAndTripsBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	s := newSender(t, srv.URL)

	for i := 0; i < 3; i++ {
		err := s.Send(context.Background(), "created", "TS-X", "maria@example.com")
		require.Error(t, err)
		assert.False(t, retry.IsPermanent(err))
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSend_UnknownKind(t *testing.T) {
	err := newSender(t, "http://localhost:1").Send(context.Background(), "refunded", "TS-X", "a@b.c")

	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.True(t, retry.IsPermanent(err))
}
