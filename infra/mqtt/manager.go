package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/usagecast/usagecast/core/logger"
	coremqtt "github.com/usagecast/usagecast/core/mqtt"
	"github.com/usagecast/usagecast/core/model"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultReconnectPeriod = 5 * time.Second
)

// ServerSource provides broker definitions. It is implemented by the
// configuration store.
type ServerSource interface {
	GetMQTTServer(ctx context.Context, id int) (*model.MQTTServer, error)
}

// pahoClient is the slice of the paho API the manager uses, extracted for
// test injection.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type connectAttempt struct {
	done   chan struct{}
	client pahoClient
	err    error
}

// Manager owns one lazily-created, auto-reconnecting paho client per
// configured broker. Connections are established on first publish, never at
// startup, so a dead broker cannot fail service boot.
type Manager struct {
	servers ServerSource
	monitor *Monitor
	log     logger.Logger

	connectTimeout  time.Duration
	reconnectPeriod time.Duration

	mu       sync.Mutex
	clients  map[int]pahoClient
	inflight map[int]*connectAttempt
}

// NewManager creates a Manager with the default connect timeout (10s) and
// reconnect period (5s).
func NewManager(servers ServerSource, monitor *Monitor, log logger.Logger) *Manager {
	return &Manager{
		servers:         servers,
		monitor:         monitor,
		log:             log,
		connectTimeout:  defaultConnectTimeout,
		reconnectPeriod: defaultReconnectPeriod,
		clients:         make(map[int]pahoClient),
		inflight:        make(map[int]*connectAttempt),
	}
}

// Publish resolves a live connection for the server and publishes the
// payload. Transport errors are returned to the caller; the manager retries
// connections, never publishes.
func (m *Manager) Publish(ctx context.Context, serverID int, topic, payload string) error {
	cli, err := m.getOrConnect(ctx, serverID)
	if err != nil {
		m.monitor.PublishFailure(serverID, err.Error())
		return fmt.Errorf("resolve connection for server %d: %w", serverID, err)
	}

	token := cli.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		m.monitor.PublishFailure(serverID, err.Error())
		m.log.Errorf("publish to server %d topic %s failed: %v", serverID, topic, err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	m.monitor.PublishSuccess(serverID)
	m.log.Debugf("published to server %d topic %s", serverID, topic)
	return nil
}

// getOrConnect returns a connected client for the server, joining an
// in-flight connection attempt instead of racing a second one.
func (m *Manager) getOrConnect(ctx context.Context, serverID int) (pahoClient, error) {
	m.mu.Lock()
	if att, ok := m.inflight[serverID]; ok {
		m.mu.Unlock()
		select {
		case <-att.done:
			return att.client, att.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if cli, ok := m.clients[serverID]; ok && cli.IsConnected() {
		m.mu.Unlock()
		return cli, nil
	}
	att := &connectAttempt{done: make(chan struct{})}
	m.inflight[serverID] = att
	m.mu.Unlock()

	att.client, att.err = m.connect(ctx, serverID)

	m.mu.Lock()
	delete(m.inflight, serverID)
	if att.err == nil {
		m.clients[serverID] = att.client
	}
	m.mu.Unlock()
	close(att.done)

	return att.client, att.err
}

func (m *Manager) connect(ctx context.Context, serverID int) (pahoClient, error) {
	server, err := m.servers.GetMQTTServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server %d: %w", serverID, err)
	}
	if server == nil {
		return nil, fmt.Errorf("server %d: %w", serverID, coremqtt.ErrServerNotFound)
	}

	m.monitor.Register(serverID)
	m.monitor.ConnectAttempt(serverID)

	opts := m.clientOptions(*server)
	cli := newMQTTClient(opts)

	token := cli.Connect()
	if !token.WaitTimeout(m.connectTimeout) {
		msg := fmt.Sprintf("timeout connecting to server %s (%s)", server.Name, server.URL())
		m.monitor.ConnectFailure(serverID, msg)
		cli.Disconnect(0)
		m.log.Errorf("%s", msg)
		return nil, fmt.Errorf("%s: %w", server.URL(), coremqtt.ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		m.monitor.ConnectFailure(serverID, err.Error())
		m.log.Errorf("connection to server %s failed: %v", server.Name, err)
		return nil, fmt.Errorf("connect %s: %w", server.URL(), err)
	}
	return cli, nil
}

func (m *Manager) clientOptions(server model.MQTTServer) *paho.ClientOptions {
	clientID := server.ClientID
	if clientID == "" {
		clientID = "usagecast-" + uuid.NewString()[:8]
	}
	opts := paho.NewClientOptions().
		AddBroker(server.URL()).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(m.reconnectPeriod).
		SetConnectTimeout(m.connectTimeout)
	if server.Username != "" {
		opts.SetUsername(server.Username)
	}
	if server.Password != "" {
		opts.SetPassword(server.Password)
	}
	if server.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	serverID := server.ID
	opts.OnConnect = func(paho.Client) {
		m.log.Infof("connected to mqtt server %s (%s)", server.Name, server.URL())
		m.monitor.ConnectSuccess(serverID)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		m.log.Errorf("connection to mqtt server %s lost: %v", server.Name, err)
		m.monitor.Disconnect(serverID)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		m.log.Warnf("reconnecting to mqtt server %s", server.Name)
		m.monitor.ConnectAttempt(serverID)
	}
	return opts
}

// Status reports the connection state and health of one broker.
func (m *Manager) Status(serverID int) model.MQTTServerStatus {
	m.mu.Lock()
	cli, ok := m.clients[serverID]
	m.mu.Unlock()
	connected := ok && cli.IsConnected()
	return model.MQTTServerStatus{
		ServerID:  serverID,
		Connected: connected,
		Healthy:   m.monitor.Healthy(serverID, connected),
		Details:   m.monitor.HealthDetails(serverID, connected),
		Stats:     m.monitor.Stats(serverID),
	}
}

// AllStatuses reports the state of every broker seen so far.
func (m *Manager) AllStatuses() []model.MQTTServerStatus {
	ids := m.monitor.ServerIDs()
	statuses := make([]model.MQTTServerStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, m.Status(id))
	}
	return statuses
}

// TestConnection establishes (or reuses) a connection and reports the
// outcome. Used by the admin test endpoint.
func (m *Manager) TestConnection(ctx context.Context, serverID int) model.TestResult {
	if _, err := m.getOrConnect(ctx, serverID); err != nil {
		return model.TestResult{Success: false, Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	return model.TestResult{
		Success: true,
		Message: fmt.Sprintf("Connection successful. %s", m.monitor.HealthDetails(serverID, true)),
	}
}

// ResetStats clears the monitoring counters of a broker. External
// configuration flows call this when a broker is deleted.
func (m *Manager) ResetStats(serverID int) {
	m.monitor.Reset(serverID)
}

// Shutdown closes every open client and returns the number closed. Each
// close is attempted even if earlier ones fail.
func (m *Manager) Shutdown() int {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[int]pahoClient)
	m.mu.Unlock()

	closed := 0
	for id, cli := range clients {
		cli.Disconnect(250)
		m.monitor.Disconnect(id)
		closed++
	}
	m.log.Infof("disconnected from %d mqtt servers", closed)
	return closed
}
