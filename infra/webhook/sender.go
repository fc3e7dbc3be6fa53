package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/usagecast/usagecast/core/logger"
	corewebhook "github.com/usagecast/usagecast/core/webhook"
)

const (
	requestTimeout  = 10 * time.Second
	timestampHeader = "X-Webhook-Timestamp"
)

// ErrorKind classifies delivery failures for diagnostics. All kinds follow
// the same retry path.
type ErrorKind int

const (
	// KindStatus means the server responded with a non-2xx status.
	KindStatus ErrorKind = iota
	// KindNoResponse means the request went out but no response arrived.
	KindNoResponse
	// KindSetup means the request could not be built at all.
	KindSetup
)

// DeliveryError is a typed webhook failure.
type DeliveryError struct {
	Kind   ErrorKind
	Status int
	msg    string
}

func (e *DeliveryError) Error() string { return e.msg }

// Sender performs webhook HTTP deliveries. It keeps no per-destination
// state; every call is independent.
type Sender struct {
	client *http.Client
	log    logger.Logger
	now    func() time.Time
}

// NewSender creates a Sender with the 10 second request timeout.
func NewSender(log logger.Logger) *Sender {
	return &Sender{
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
		now:    time.Now,
	}
}

// Deliver executes the request and returns the response status code. When a
// signing secret is set, a timestamp header and an HMAC-SHA256 signature
// over "<timestamp>.<body>" are attached. GET requests never carry a body.
func (s *Sender) Deliver(ctx context.Context, req corewebhook.Request) (int, error) {
	method := strings.ToUpper(req.Method)
	var body io.Reader
	if hasBody(method) && req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return 0, &DeliveryError{Kind: KindSetup, msg: fmt.Sprintf("request setup failed: %v", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Secret != "" {
		ts := strconv.FormatInt(s.now().UnixMilli(), 10)
		httpReq.Header.Set(timestampHeader, ts)
		header := req.SignatureHeader
		if header == "" {
			header = "X-Webhook-Signature"
		}
		httpReq.Header.Set(header, Sign(req.Secret, ts, req.Body))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, &DeliveryError{Kind: KindNoResponse, msg: fmt.Sprintf("no response received: %v", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &DeliveryError{
			Kind:   KindStatus,
			Status: resp.StatusCode,
			msg:    fmt.Sprintf("server responded with %d", resp.StatusCode),
		}
	}
	s.log.Debugf("webhook delivered to %s (%d)", req.URL, resp.StatusCode)
	return resp.StatusCode, nil
}

// Sign computes the hex HMAC-SHA256 signature of "<timestamp>.<body>".
func Sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
