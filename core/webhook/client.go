package webhook

import "context"

// Request is one fully rendered webhook delivery.
type Request struct {
	URL             string
	Method          string
	Headers         map[string]string
	Body            string
	Secret          string
	SignatureHeader string
}

// Sender performs one HTTP delivery and returns the response status code.
// Transport failures surface as errors so the caller can queue a retry.
type Sender interface {
	Deliver(ctx context.Context, req Request) (int, error)
}
