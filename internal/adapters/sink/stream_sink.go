package sink

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/eventbus"
	"cryptoRateWatch/internal/ports"
)

// Envelope kinds.
const (
	KindRateChanged      = "rate_changed"
	KindPositionRevalued = "position_revalued"
)

// Envelope is one msgpack frame on the forwarding stream. Exactly one payload is set.
// Decimals travel as strings so no precision is lost.
type Envelope struct {
	Kind        string              `msgpack:"kind"`
	SentAt      int64               `msgpack:"sent_at"` // Unix milliseconds
	RateChange  *RateChangeMessage  `msgpack:"rate_change,omitempty"`
	Revaluation *RevaluationMessage `msgpack:"revaluation,omitempty"`
}

// RateChangeMessage is the wire form of domain.RateChangeEvent.
type RateChangeMessage struct {
	Symbol           string `msgpack:"symbol"`
	OldPrice         string `msgpack:"old_price"`
	NewPrice         string `msgpack:"new_price"`
	PercentageChange string `msgpack:"percentage_change"`
	Timestamp        int64  `msgpack:"timestamp"` // Unix milliseconds
}

// RevaluationMessage is the wire form of domain.RevaluationResult.
type RevaluationMessage struct {
	PositionID   string `msgpack:"position_id"`
	Symbol       string `msgpack:"symbol"`
	Side         string `msgpack:"side"`
	Quantity     string `msgpack:"quantity"`
	EntryPrice   string `msgpack:"entry_price"`
	CurrentPrice string `msgpack:"current_price"`
	ProfitLoss   string `msgpack:"profit_loss"`
	CalculatedAt int64  `msgpack:"calculated_at"` // Unix milliseconds
}

// StreamSink forwards events as msgpack envelopes to a writer, typically a TCP connection
// to another process. Writes are serialised, so the sink is safe under concurrent dispatch.
type StreamSink struct {
	logger ports.Logger
	now    func() time.Time

	mu     sync.Mutex
	enc    *msgpack.Encoder
	closer io.Closer
}

// NewStreamSink creates a sink writing to w. If w is an io.Closer, Close closes it.
func NewStreamSink(w io.Writer, logger ports.Logger) *StreamSink {
	s := &StreamSink{
		logger: logger,
		now:    time.Now,
		enc:    msgpack.NewEncoder(w),
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// DialStreamSink connects to addr over TCP and returns a sink writing to that connection.
func DialStreamSink(ctx context.Context, addr string, logger ports.Logger) (*StreamSink, error) {
	logger.Info(ctx, "Connecting stream sink", map[string]interface{}{"addr": addr})

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect stream sink to %s: %w: %w", addr, ports.ErrConnectionFailed, err)
	}
	return NewStreamSink(conn, logger), nil
}

// Register subscribes the sink to both topics of bus.
func (s *StreamSink) Register(bus *eventbus.Bus) {
	bus.RateChanged.Subscribe("stream-sink", s.HandleRateChanged)
	bus.PositionRevalued.Subscribe("stream-sink", s.HandleRevaluation)
}

// HandleRateChanged writes ev to the stream as a rate-change envelope.
func (s *StreamSink) HandleRateChanged(ctx context.Context, ev domain.RateChangeEvent) error {
	return s.send(ctx, Envelope{
		Kind: KindRateChanged,
		RateChange: &RateChangeMessage{
			Symbol:           ev.Symbol,
			OldPrice:         ev.OldPrice.String(),
			NewPrice:         ev.NewPrice.String(),
			PercentageChange: ev.PercentageChange.String(),
			Timestamp:        ev.Timestamp.UnixMilli(),
		},
	})
}

// HandleRevaluation writes r to the stream as a revaluation envelope.
func (s *StreamSink) HandleRevaluation(ctx context.Context, r domain.RevaluationResult) error {
	return s.send(ctx, Envelope{
		Kind: KindPositionRevalued,
		Revaluation: &RevaluationMessage{
			PositionID:   r.PositionID,
			Symbol:       r.Symbol,
			Side:         string(r.Side),
			Quantity:     r.Quantity.String(),
			EntryPrice:   r.EntryPrice.String(),
			CurrentPrice: r.CurrentPrice.String(),
			ProfitLoss:   r.ProfitLoss.String(),
			CalculatedAt: r.CalculatedAt.UnixMilli(),
		},
	})
}

func (s *StreamSink) send(ctx context.Context, env Envelope) error {
	env.SentAt = s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("stream sink closed: %w", ports.ErrConnectionFailed)
	}
	if err := s.enc.Encode(&env); err != nil {
		s.logger.Warn(ctx, "Stream sink write failed", map[string]interface{}{"kind": env.Kind, "error": err.Error()})
		return fmt.Errorf("forward %s: %w: %w", env.Kind, ports.ErrConnectionFailed, err)
	}
	return nil
}

// Close stops the sink and closes the underlying writer when it is closable.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// ReadEnvelope decodes the next envelope from a forwarding stream.
func ReadEnvelope(dec *msgpack.Decoder) (Envelope, error) {
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
