package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corewebhook "github.com/usagecast/usagecast/core/webhook"
	"github.com/usagecast/usagecast/infra/logger"
)

func TestDeliverSuccess(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(logger.NopLogger{})
	status, err := s.Deliver(context.Background(), corewebhook.Request{
		URL:     srv.URL,
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    `{"status":"in_use"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `{"status":"in_use"}`, gotBody)
}

func TestDeliverSignsWhenSecretSet(t *testing.T) {
	var ts, sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts = r.Header.Get("X-Webhook-Timestamp")
		sig = r.Header.Get("X-Custom-Sig")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender(logger.NopLogger{})
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	body := `{"id":1}`
	_, err := s.Deliver(context.Background(), corewebhook.Request{
		URL:             srv.URL,
		Method:          "POST",
		Body:            body,
		Secret:          "topsecret",
		SignatureHeader: "X-Custom-Sig",
	})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", ts)
	assert.Equal(t, Sign("topsecret", "1700000000000", body), sig)
}

func TestDeliverGetOmitsBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	s := NewSender(logger.NopLogger{})
	_, err := s.Deliver(context.Background(), corewebhook.Request{URL: srv.URL, Method: "GET", Body: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, gotBody)
}

func TestDeliverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSender(logger.NopLogger{})
	status, err := s.Deliver(context.Background(), corewebhook.Request{URL: srv.URL, Method: "POST"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)

	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KindStatus, derr.Kind)
	assert.Equal(t, http.StatusInternalServerError, derr.Status)
}

func TestDeliverNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens anymore

	s := NewSender(logger.NopLogger{})
	_, err := s.Deliver(context.Background(), corewebhook.Request{URL: srv.URL, Method: "POST"})
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KindNoResponse, derr.Kind)
}

func TestDeliverSetupError(t *testing.T) {
	s := NewSender(logger.NopLogger{})
	_, err := s.Deliver(context.Background(), corewebhook.Request{URL: "://not-a-url", Method: "POST"})
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KindSetup, derr.Kind)
}

func TestSignStable(t *testing.T) {
	a := Sign("secret", "123", "body")
	b := Sign("secret", "123", "body")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("other", "123", "body"))
}
