package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// coreConn is the subset of *nats.Conn the service uses.
type coreConn interface {
	Publish(subject string, data []byte) error
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// streamPublisher is the subset of nats.JetStreamContext the service uses.
type streamPublisher interface {
	Publish(subject string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// connSource supplies live transport handles so the service always sees the
// current connection and persistence state.
type connSource interface {
	Core() coreConn
	Stream() streamPublisher
}

// MessageHandler receives one decoded message per delivery.
type MessageHandler func(subject string, data map[string]any)

// SubscriptionHandle identifies an active subscription.
type SubscriptionHandle string

// Service provides publish, request-response, and subscribe operations over
// the shared transport connection. Every operation is fire-and-report: failures
// become a false/nil return plus a log line, never an error to business logic.
type Service struct {
	src    connSource
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[SubscriptionHandle]*nats.Subscription
	nextID atomic.Uint64
}

func NewService(m *Manager, logger *slog.Logger) *Service {
	return newService(m, logger)
}

func newService(src connSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		src:    src,
		logger: logger,
		subs:   make(map[SubscriptionHandle]*nats.Subscription),
	}
}

// Publish sends a JSON-serialized event to a subject. With persistent=true it
// attempts guaranteed delivery first and transparently degrades to best-effort
// on any failure there; callers never need to distinguish the two outcomes.
func (s *Service) Publish(subject string, data map[string]any, persistent bool) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("bus.publish.encode_failed", "subject", subject, "error", err)
		return false
	}

	if persistent {
		if js := s.src.Stream(); js != nil {
			if _, err := js.Publish(subject, payload); err == nil {
				s.logger.Debug("published persistent event", "subject", subject)
				return true
			} else {
				s.logger.Warn("bus.publish.fallback",
					"subject", subject, "error", err)
			}
		} else {
			s.logger.Warn("bus.publish.fallback", "subject", subject, "error", "persistence unavailable")
		}
	}

	nc := s.src.Core()
	if nc == nil {
		s.logger.Error("bus.publish.failed", "subject", subject, "error", "not connected")
		return false
	}
	if err := nc.Publish(subject, payload); err != nil {
		s.logger.Error("bus.publish.failed", "subject", subject, "error", err)
		return false
	}
	s.logger.Debug("published event", "subject", subject)
	return true
}

// Request sends a correlated request and waits up to timeout for one reply.
// Absence of a responder is an expected case, not an error: the result is nil
// on timeout, transport failure, or an undecodable reply.
func (s *Service) Request(subject string, data map[string]any, timeout time.Duration) map[string]any {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("bus.request.encode_failed", "subject", subject, "error", err)
		return nil
	}
	nc := s.src.Core()
	if nc == nil {
		s.logger.Error("bus.request.failed", "subject", subject, "error", "not connected")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	msg, err := nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		s.logger.Warn("bus.request.failed", "subject", subject, "timeout", timeout, "error", err)
		return nil
	}
	if msg == nil || len(msg.Data) == 0 {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		s.logger.Error("bus.request.decode_failed", "subject", subject, "error", err)
		return nil
	}
	s.logger.Debug("request completed", "subject", subject)
	return result
}

// Subscribe registers a handler for a subject pattern. A non-empty queueGroup
// enables competing-consumers delivery. Per-message decode failures are logged
// and dropped; they never take the subscription down.
func (s *Service) Subscribe(subject string, handler MessageHandler, queueGroup string) (SubscriptionHandle, error) {
	nc := s.src.Core()
	if nc == nil {
		return "", fmt.Errorf("subscribe %s: not connected", subject)
	}

	cb := func(msg *nats.Msg) {
		var data map[string]any
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.logger.Error("bus.message.decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(msg.Subject, data)
	}

	var sub *nats.Subscription
	var err error
	if queueGroup != "" {
		sub, err = nc.QueueSubscribe(subject, queueGroup, cb)
	} else {
		sub, err = nc.Subscribe(subject, cb)
	}
	if err != nil {
		s.logger.Error("bus.subscribe.failed", "subject", subject, "error", err)
		return "", fmt.Errorf("subscribe %s: %w", subject, err)
	}

	handle := SubscriptionHandle(fmt.Sprintf("%s_%d", subject, s.nextID.Add(1)))
	s.mu.Lock()
	s.subs[handle] = sub
	s.mu.Unlock()

	if queueGroup != "" {
		s.logger.Info("subscribed", "subject", subject, "queue_group", queueGroup)
	} else {
		s.logger.Info("subscribed", "subject", subject)
	}
	return handle, nil
}

// Unsubscribe removes a subscription. It is idempotent and returns false when
// the handle is already inactive.
func (s *Service) Unsubscribe(handle SubscriptionHandle) bool {
	s.mu.Lock()
	sub, ok := s.subs[handle]
	if ok {
		delete(s.subs, handle)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("bus.unsubscribe.failed", "handle", handle, "error", err)
	} else {
		s.logger.Info("unsubscribed", "handle", handle)
	}
	return true
}
