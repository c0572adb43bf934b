package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hdds-team/hdds-sub002/internal/cdr"
	"github.com/hdds-team/hdds-sub002/pkg/log"
	"github.com/nats-io/nats.go"
)

// ForwarderConfig configures the outbound NATS connection (adapted from
// pkg/nats.NatsConfig's address/username/password/creds-file-path
// shape).
type ForwarderConfig struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
	SubjectPrefix string // topics are published as SubjectPrefix+topic_name
}

// Forwarder publishes projected DynamicData samples to NATS, one
// subject per topic. Connection management (reconnect/error handlers)
// is grounded directly on pkg/nats/client.go's NewClient, re-themed to
// forward RTPS samples instead of InfluxDB line-protocol bytes.
type Forwarder struct {
	mu   sync.Mutex
	conn *nats.Conn
	cfg  ForwarderConfig
}

// NewForwarder dials the NATS server and returns a ready Forwarder.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bridge: nats address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("bridge: nats disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("bridge: nats reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("bridge: nats error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("bridge: nats connect failed: %w", err)
	}
	log.Infof("bridge: nats connected to %s", cfg.Address)

	return &Forwarder{conn: nc, cfg: cfg}, nil
}

// ForwardSample projects sample into a plain value via Project,
// JSON-encodes it, and publishes it on SubjectPrefix+topic.
func (f *Forwarder) ForwardSample(topic string, sample *cdr.Value) error {
	projected := Project(sample)
	data, err := json.Marshal(projected)
	if err != nil {
		return fmt.Errorf("bridge: marshal sample for topic %q: %w", topic, err)
	}

	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("bridge: not connected")
	}
	if err := conn.Publish(f.cfg.SubjectPrefix+topic, data); err != nil {
		return fmt.Errorf("bridge: publish to %q failed: %w", topic, err)
	}
	return nil
}

// Flush ensures every queued publish has been sent.
func (f *Forwarder) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.Flush()
}

// Close closes the NATS connection.
func (f *Forwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		log.Info("bridge: nats connection closed")
		f.conn = nil
	}
}

// IsConnected reports whether the forwarder has an active connection.
func (f *Forwarder) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil && f.conn.IsConnected()
}
