package model

// DefaultSignatureHeader carries the HMAC signature unless the config
// overrides it.
const DefaultSignatureHeader = "X-Webhook-Signature"

// WebhookConfig binds a resource to an HTTP endpoint. Headers is a JSON
// object whose values may contain templates, stored as raw text the way the
// admin API persists it.
type WebhookConfig struct {
	ID         int    `json:"id"`
	ResourceID int    `json:"resource_id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Method     string `json:"method"`
	Headers    string `json:"headers"`

	InUseTemplate    string `json:"in_use_template"`
	NotInUseTemplate string `json:"not_in_use_template"`
	TakeoverTemplate string `json:"takeover_template"`

	Active bool `json:"active"`

	SendOnStart    bool `json:"send_on_start"`
	SendOnStop     bool `json:"send_on_stop"`
	SendOnTakeover bool `json:"send_on_takeover"`

	RetryEnabled bool `json:"retry_enabled"`
	MaxRetries   int  `json:"max_retries"`
	RetryDelayMs int  `json:"retry_delay_ms"`

	Secret          string `json:"secret"`
	SignatureHeader string `json:"signature_header"`
}

// EffectiveMaxRetries folds the retry toggle into the retry budget: a config
// with retries disabled gets a single delivery attempt and is never queued.
func (c WebhookConfig) EffectiveMaxRetries() int {
	if !c.RetryEnabled {
		return 0
	}
	return c.MaxRetries
}

// EffectiveSignatureHeader returns the configured signature header name or
// the default.
func (c WebhookConfig) EffectiveSignatureHeader() string {
	if c.SignatureHeader == "" {
		return DefaultSignatureHeader
	}
	return c.SignatureHeader
}
