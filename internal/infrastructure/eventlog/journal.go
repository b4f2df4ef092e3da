package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/nerrad567/roomctl-core/internal/infrastructure/config"
)

// Event types written to the journal.
const (
	TypeDecision = "decision"
	TypeOverride = "override"
	TypeCommand  = "command"
)

const (
	defaultBufferSize   = 256
	defaultBatchSize    = 50
	defaultWriteTimeout = 5 * time.Second
	flushInterval       = time.Second
)

// ErrClosed is returned by Run once the journal has been closed.
var ErrClosed = errors.New("eventlog: journal closed")

// Event is one journal entry. Fields that do not apply to a type are empty.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DeviceID    string    `json:"device_id"`
	Action      string    `json:"action,omitempty"`
	Status      string    `json:"status,omitempty"`
	Class       string    `json:"class,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	EnergyDelta float64   `json:"energy_delta,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Logger is the subset of logging.Logger the journal uses.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Journal publishes decision and override events to Kafka.
//
// Record never blocks: events are buffered and written in batches by Run.
// When the buffer is full the event is dropped and counted.
type Journal struct {
	writer       messageWriter
	writeTimeout time.Duration
	events       chan Event
	logger       Logger

	mu      sync.Mutex
	dropped int
	closed  bool
}

// New creates a journal writing to the configured topic.
// Call Run in its own goroutine to start delivery.
func New(cfg config.KafkaConfig, logger Logger) *Journal {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    defaultBatchSize,
	}
	return newJournal(w, cfg.WriteTimeout, logger)
}

func newJournal(w messageWriter, timeout time.Duration, logger Logger) *Journal {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Journal{
		writer:       w,
		writeTimeout: timeout,
		events:       make(chan Event, defaultBufferSize),
		logger:       logger,
	}
}

// Record queues an event. ID and At are filled in when empty.
func (j *Journal) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	select {
	case j.events <- e:
	default:
		j.dropped++
		j.logger.Warn("journal buffer full, event dropped", "device_id", e.DeviceID, "type", e.Type)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// left and closes the writer.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, defaultBatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := j.write(ctx, batch); err != nil {
			j.logger.Error("journal write failed", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			j.mu.Lock()
			j.closed = true
			j.mu.Unlock()
			drain(j.events, &batch, j.logger)
			flush(context.Background())
			if err := j.writer.Close(); err != nil {
				return fmt.Errorf("closing kafka writer: %w", err)
			}
			return nil
		case e := <-j.events:
			msg, err := encode(e)
			if err != nil {
				j.logger.Error("journal encode failed", "device_id", e.DeviceID, "error", err)
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= defaultBatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (j *Journal) write(ctx context.Context, batch []kafka.Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, j.writeTimeout)
	defer cancel()
	return j.writer.WriteMessages(writeCtx, batch...)
}

func drain(events <-chan Event, batch *[]kafka.Message, logger Logger) {
	for {
		select {
		case e := <-events:
			msg, err := encode(e)
			if err != nil {
				logger.Error("journal encode failed", "device_id", e.DeviceID, "error", err)
				continue
			}
			*batch = append(*batch, msg)
		default:
			return
		}
	}
}

func encode(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.DeviceID),
		Value: value,
		Time:  e.At,
	}, nil
}
