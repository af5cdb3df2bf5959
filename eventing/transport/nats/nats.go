// Package nats implements the event transport on top of core NATS.
//
// Each payload name maps to one subject; subscriptions pull from a
// buffered channel so consumers keep the executor's pull semantics.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"loom/eventing"
	"loom/logging"
)

// Config configures the NATS transport.
type Config struct {
	URL           string
	Conn          *nats.Conn
	SubjectPrefix string
	QueueBuffer   int
	Registry      *eventing.PayloadRegistry
	Logger        logging.Logger
}

// Transport is an eventing.ITransport backed by core NATS subjects.
type Transport struct {
	cfg      Config
	conn     *nats.Conn
	ownsConn bool
	logger   logging.Logger

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewTransport connects (unless a Conn is supplied) and builds the transport.
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.Registry == nil {
		return nil, errors.New("nats transport requires a payload registry")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "loom.events."
	}
	if cfg.QueueBuffer <= 0 {
		cfg.QueueBuffer = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}

	t := &Transport{cfg: cfg, logger: cfg.Logger}
	if cfg.Conn != nil {
		t.conn = cfg.Conn
	} else {
		if cfg.URL == "" {
			cfg.URL = nats.DefaultURL
		}
		conn, err := nats.Connect(cfg.URL)
		if err != nil {
			return nil, err
		}
		t.conn = conn
		t.ownsConn = true
	}
	return t, nil
}

var _ eventing.ITransport = (*Transport)(nil)

func (t *Transport) Publish(ctx context.Context, events []eventing.Event) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return eventing.ErrEndOfStream
	}

	for _, e := range events {
		name, data, err := marshalEvent(t.cfg.Registry, e)
		if err != nil {
			return err
		}
		if err := t.conn.Publish(t.cfg.SubjectPrefix+name, data); err != nil {
			return err
		}
	}
	return t.conn.Flush()
}

// Subscribe attaches to the subjects selected by the stream selector.
// An empty payload-name list subscribes to every event subject; the
// aggregate-id filter is applied client side.
func (t *Transport) Subscribe(selector eventing.StreamSelector) (eventing.ISubscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, eventing.ErrEndOfStream
	}

	sub := &Subscription{
		id:       "sub-" + uuid.NewString(),
		selector: selector,
		registry: t.cfg.Registry,
		logger:   t.logger,
		ch:       make(chan *nats.Msg, t.cfg.QueueBuffer),
	}

	subjects := []string{t.cfg.SubjectPrefix + ">"}
	if len(selector.PayloadNames) > 0 {
		subjects = subjects[:0]
		for _, name := range selector.PayloadNames {
			subjects = append(subjects, t.cfg.SubjectPrefix+name)
		}
	}
	for _, subject := range subjects {
		natsSub, err := t.conn.ChanSubscribe(subject, sub.ch)
		if err != nil {
			sub.unsubscribe()
			return nil, err
		}
		sub.natsSubs = append(sub.natsSubs, natsSub)
	}

	t.subs = append(t.subs, sub)
	return sub, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, sub := range t.subs {
		sub.end()
	}
	if t.ownsConn {
		t.conn.Close()
	}
	return nil
}

// Subscription consumes one selected stream from NATS.
type Subscription struct {
	id       string
	selector eventing.StreamSelector
	registry *eventing.PayloadRegistry
	logger   logging.Logger
	ch       chan *nats.Msg
	natsSubs []*nats.Subscription

	endOnce sync.Once
}

var _ eventing.ISubscription = (*Subscription)(nil)

func (s *Subscription) unsubscribe() {
	for _, ns := range s.natsSubs {
		_ = ns.Unsubscribe()
	}
}

func (s *Subscription) end() {
	s.endOnce.Do(func() {
		s.unsubscribe()
		close(s.ch)
	})
}

func (s *Subscription) Next(ctx context.Context) (eventing.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return eventing.Event{}, ctx.Err()
		case msg, ok := <-s.ch:
			if !ok {
				return eventing.Event{}, eventing.ErrEndOfStream
			}
			event, err := unmarshalEvent(s.registry, msg.Data)
			if err != nil {
				s.logger.Warn(ctx, "decode nats event failed",
					logging.String("subscription", s.id), logging.Error(err))
				continue
			}
			if !s.selector.Matches(event, s.registry.NameOf) {
				continue
			}
			return event, nil
		}
	}
}

func (s *Subscription) Depth() int {
	return len(s.ch)
}

func (s *Subscription) Close() error {
	s.end()
	return nil
}

type wireEvent struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	SequenceNumber int64           `json:"sequence_number"`
	Timestamp      int64           `json:"timestamp"`
	PayloadName    string          `json:"payload_name"`
	Payload        json.RawMessage `json:"payload"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	CausationID    string          `json:"causation_id,omitempty"`
}

func marshalEvent(registry *eventing.PayloadRegistry, e eventing.Event) (string, []byte, error) {
	name, payload, err := registry.Marshal(e.Payload)
	if err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(wireEvent{
		ID:             e.ID,
		AggregateID:    e.AggregateID,
		SequenceNumber: e.SequenceNumber,
		Timestamp:      e.Timestamp.UnixNano(),
		PayloadName:    name,
		Payload:        payload,
		CorrelationID:  e.CorrelationID,
		CausationID:    e.CausationID,
	})
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

func unmarshalEvent(registry *eventing.PayloadRegistry, data []byte) (eventing.Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return eventing.Event{}, err
	}
	payload, err := registry.Unmarshal(wire.PayloadName, wire.Payload)
	if err != nil {
		return eventing.Event{}, err
	}
	return eventing.Event{
		ID:             wire.ID,
		AggregateID:    wire.AggregateID,
		SequenceNumber: wire.SequenceNumber,
		Timestamp:      time.Unix(0, wire.Timestamp).UTC(),
		Payload:        payload,
		CorrelationID:  wire.CorrelationID,
		CausationID:    wire.CausationID,
	}, nil
}
