package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	coremqtt "github.com/usagecast/usagecast/core/mqtt"
	"github.com/usagecast/usagecast/core/model"
)

// WebhookTester performs one real delivery against a webhook config.
type WebhookTester interface {
	TestWebhook(ctx context.Context, configID int) model.TestResult
}

// NewMux assembles the admin API routes. Requests must include an
// Authorization header with "Bearer <token>" when token is non-empty.
func NewMux(reporter coremqtt.StatusReporter, tester coremqtt.ConnectionTester, webhooks WebhookTester, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/mqtt/servers/status", auth(token, NewAllStatusesHandler(reporter)))
	mux.Handle("GET /api/mqtt/servers/{id}/status", auth(token, NewStatusHandler(reporter)))
	mux.Handle("POST /api/mqtt/servers/{id}/test", auth(token, NewMQTTTestHandler(tester)))
	mux.Handle("POST /api/webhooks/{id}/test", auth(token, NewWebhookTestHandler(webhooks)))
	return mux
}

// NewAllStatusesHandler exposes the state of every broker seen so far.
func NewAllStatusesHandler(reporter coremqtt.StatusReporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, reporter.AllStatuses())
	})
}

// NewStatusHandler exposes the state of one broker.
func NewStatusHandler(reporter coremqtt.StatusReporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		writeJSON(w, reporter.Status(id))
	})
}

// NewMQTTTestHandler triggers a one-off connection check against a broker.
func NewMQTTTestHandler(tester coremqtt.ConnectionTester) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		writeJSON(w, tester.TestConnection(r.Context(), id))
	})
}

// NewWebhookTestHandler triggers a one-off delivery against a webhook config.
func NewWebhookTestHandler(tester WebhookTester) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		writeJSON(w, tester.TestWebhook(r.Context(), id))
	})
}

func auth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
