package model

import "fmt"

// MQTTServer describes a configured broker. Credentials are optional; the
// client id is generated when empty.
type MQTTServer struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
	UseTLS   bool   `json:"use_tls"`
}

// URL builds the broker URL with the scheme matching the TLS flag.
func (s MQTTServer) URL() string {
	scheme := "mqtt"
	if s.UseTLS {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// MQTTConfig binds a resource to a broker with topic and message templates
// for each usage transition. The takeover templates are optional; the three
// OnTakeover toggles select which sub-messages a takeover event produces.
type MQTTConfig struct {
	ID         int `json:"id"`
	ResourceID int `json:"resource_id"`
	ServerID   int `json:"server_id"`

	InUseTopic      string `json:"in_use_topic"`
	InUseMessage    string `json:"in_use_message"`
	NotInUseTopic   string `json:"not_in_use_topic"`
	NotInUseMessage string `json:"not_in_use_message"`
	TakeoverTopic   string `json:"takeover_topic"`
	TakeoverMessage string `json:"takeover_message"`

	OnTakeoverSendStart    bool `json:"on_takeover_send_start"`
	OnTakeoverSendStop     bool `json:"on_takeover_send_stop"`
	OnTakeoverSendTakeover bool `json:"on_takeover_send_takeover"`
}

// HasTakeoverTemplate reports whether the config can render a takeover notice.
func (c MQTTConfig) HasTakeoverTemplate() bool {
	return c.TakeoverTopic != "" && c.TakeoverMessage != ""
}

// ConnectionStats captures the lifetime counters of one broker connection.
type ConnectionStats struct {
	ConnectAttempts  int64  `json:"connect_attempts"`
	ConnectSuccesses int64  `json:"connect_successes"`
	ConnectFailures  int64  `json:"connect_failures"`
	PublishSuccesses int64  `json:"publish_successes"`
	PublishFailures  int64  `json:"publish_failures"`
	LastConnectedAt  string `json:"last_connected_at,omitempty"`
	LastDisconnectAt string `json:"last_disconnect_at,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// MQTTServerStatus is the externally visible state of one broker connection.
type MQTTServerStatus struct {
	ServerID  int             `json:"server_id"`
	Connected bool            `json:"connected"`
	Healthy   bool            `json:"healthy"`
	Details   string          `json:"details"`
	Stats     ConnectionStats `json:"stats"`
}

// TestResult is returned by the admin test endpoints.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
