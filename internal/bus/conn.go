package bus

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/talentpool/cv-pipeline/internal/common"
)

// stream definitions provisioned on connect. Retention is limits-based; the
// bus carries notifications, not the system of record, so dropping the oldest
// messages past the window is acceptable.
var streamDefs = []nats.StreamConfig{
	{
		Name:        "EVENTS",
		Subjects:    []string{"events.>"},
		Description: "Application events stream",
	},
	{
		Name:        "AGENT_TASKS",
		Subjects:    []string{"agent.task.>"},
		Description: "AI agent task coordination",
	},
	{
		Name:        "CV_PROCESSING",
		Subjects:    []string{"cv.processing.>"},
		Description: "CV processing workflow events",
	},
}

const (
	streamMaxMsgs = 100_000
	streamMaxAge  = 24 * time.Hour
)

// Manager owns the lifecycle of the single NATS connection: connect with a
// bounded retry budget across candidate endpoints, JetStream provisioning,
// health probing, and graceful shutdown.
type Manager struct {
	mu          sync.Mutex
	nc          *nats.Conn
	js          nats.JetStreamContext
	persistence bool
	logger      *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Connect establishes the transport connection. JetStream provisioning is
// attempted afterwards; if the server lacks the capability the manager records
// persistence as unavailable and the connect still succeeds (degraded mode).
func (m *Manager) Connect(cfg common.NATSConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nc != nil && m.nc.IsConnected() {
		return nil
	}

	servers := strings.Join(cfg.URLs, ",")
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		nc, err = nats.Connect(servers,
			nats.Name(cfg.Identity),
			nats.MaxReconnects(cfg.ConnectAttempts),
			nats.ReconnectWait(cfg.ReconnectWait),
			nats.PingInterval(cfg.PingInterval),
			nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		)
		if err == nil {
			break
		}
		m.logger.Warn("transport connect attempt failed",
			"attempt", attempt, "max_attempts", attempts, "servers", servers, "error", err)
		if attempt < attempts {
			time.Sleep(cfg.ReconnectWait)
		}
	}
	if err != nil {
		return common.NewAppError("CONNECTION_ERROR",
			fmt.Sprintf("all endpoints unreachable after %d attempts", attempts), err)
	}

	m.nc = nc
	m.logger.Info("connected to messaging transport", "servers", servers, "identity", cfg.Identity)

	m.provisionStreams()
	return nil
}

// provisionStreams sets up the JetStream streams. Failures here leave the
// system in degraded mode rather than failing the connect.
func (m *Manager) provisionStreams() {
	js, err := m.nc.JetStream()
	if err != nil {
		m.logger.Warn("jetstream context unavailable, persistence disabled", "error", err)
		return
	}
	if _, err := js.AccountInfo(); err != nil {
		m.logger.Warn("jetstream not available on server, skipping stream setup", "error", err)
		return
	}

	for _, def := range streamDefs {
		cfg := def
		cfg.Retention = nats.LimitsPolicy
		cfg.MaxMsgs = streamMaxMsgs
		cfg.MaxAge = streamMaxAge
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist with compatible settings.
			m.logger.Debug("stream setup", "stream", cfg.Name, "error", err)
			continue
		}
		m.logger.Debug("created stream", "stream", cfg.Name, "subjects", cfg.Subjects)
	}

	m.js = js
	m.persistence = true
	m.logger.Info("jetstream persistence available")
}

// Disconnect drains and closes the connection. Safe to call repeatedly and
// before any successful connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nc == nil {
		return
	}
	if err := m.nc.Drain(); err != nil {
		m.logger.Warn("drain failed, closing connection", "error", err)
		m.nc.Close()
	}
	m.nc = nil
	m.js = nil
	m.persistence = false
	m.logger.Info("disconnected from messaging transport")
}

// Healthy reports whether the transport connection is currently usable.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nc != nil && m.nc.IsConnected()
}

// PersistenceAvailable reports whether guaranteed delivery is provisioned.
func (m *Manager) PersistenceAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistence && m.nc != nil && m.nc.IsConnected()
}

// Core returns the plain transport handle, or nil when not connected.
func (m *Manager) Core() coreConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nc == nil {
		return nil
	}
	return m.nc
}

// Stream returns the guaranteed-delivery handle, or nil when unavailable.
func (m *Manager) Stream() streamPublisher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.persistence || m.js == nil {
		return nil
	}
	return m.js
}
