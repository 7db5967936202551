package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// Publisher is the MQTT surface the telemetry components need.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MetricsWriter is the InfluxDB surface the Recorder needs.
// *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteCommandMetric(s influxdb.CommandSample)
	WriteProgramMetric(s influxdb.ProgramSample)
}

// KindLookup reports the kind of a registered device. *device.Registry
// satisfies it.
type KindLookup interface {
	KindOf(id device.ID) string
}

// NameLookup reports the name a device is bound under. *program.Directory
// satisfies it.
type NameLookup interface {
	NameOf(id device.ID) string
}

// Logger defines the logging interface used by telemetry components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultQueueSize is how many results may wait for the MQTT publisher.
const DefaultQueueSize = 256

// ResultMessage is published on graylogic/dispatch/result/{device_id} for
// every finished device command.
type ResultMessage struct {
	DeviceID  string    `json:"device_id"`
	Device    string    `json:"device,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Command   string    `json:"command"`
	Payload   string    `json:"payload,omitempty"`
	Status    string    `json:"status"`
	Value     string    `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS float64   `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a Recorder. Every collaborator is optional.
type Options struct {
	Publisher Publisher
	Metrics   MetricsWriter
	Kinds     KindLookup
	Names     NameLookup
	Logger    Logger

	// QueueSize bounds the publish queue (default DefaultQueueSize).
	QueueSize int
}

// Recorder reports finished commands and program runs to MQTT and InfluxDB.
//
// It is a dispatch.Observer (command results) and a program.WSHub (program
// completions). CommandFinished runs on the dispatcher's goroutine before
// the Pending settles, so MQTT publishing is handed to a background worker
// through a bounded queue; results that do not fit are dropped and counted.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	publisher Publisher
	metrics   MetricsWriter
	kinds     KindLookup
	names     NameLookup
	logger    Logger
	topics    mqtt.Topics

	queue   chan publication
	dropped atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// publication is one queued MQTT message.
type publication struct {
	topic   string
	payload any
}

// NewRecorder creates a Recorder. Call Start before dispatching commands
// so queued results are published.
func NewRecorder(opts Options) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		kinds:     opts.Kinds,
		names:     opts.Names,
		logger:    logger,
		queue:     make(chan publication, size),
	}
}

// Start launches the publish worker. It returns an error if already running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("telemetry: recorder already running")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true

	go r.publishLoop(ctx, r.done)
	return nil
}

// Stop drains what is already queued and stops the worker.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	<-done
}

// Dropped returns the number of results discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// CommandStarted implements dispatch.Observer.
func (r *Recorder) CommandStarted(msg device.Message) {
	r.logger.Debug("command started", "device_id", msg.Target(), "command", msg.Kind())
}

// CommandFinished implements dispatch.Observer.
func (r *Recorder) CommandFinished(msg device.Message, result device.Result, err error, elapsed time.Duration) {
	now := time.Now().UTC()
	id := msg.Target()

	var kind string
	if r.kinds != nil {
		kind = r.kinds.KindOf(id)
	}

	if r.metrics != nil {
		r.metrics.WriteCommandMetric(influxdb.CommandSample{
			DeviceID: id.String(),
			Kind:     kind,
			Command:  string(msg.Kind()),
			Elapsed:  elapsed,
			Err:      err,
			At:       now,
		})
	}

	if r.publisher == nil {
		return
	}
	r.enqueue(r.topics.CommandResult(id.String()), r.resultMessage(msg, kind, result, err, elapsed, now))
}

// Broadcast implements program.WSHub. Only program completions are recorded.
func (r *Recorder) Broadcast(channel string, payload any) {
	if channel != program.EventProgramCompleted {
		return
	}
	ev, ok := payload.(program.CompletionEvent)
	if !ok {
		r.logger.Warn("unexpected program completion payload", "channel", channel)
		return
	}

	if r.metrics != nil {
		r.metrics.WriteProgramMetric(influxdb.ProgramSample{
			Program:    ev.Program,
			Status:     string(ev.Status),
			Trigger:    ev.TriggerSource,
			DurationMS: ev.DurationMS,
			Completed:  ev.CommandsCompleted,
			Failed:     ev.CommandsFailed,
			Skipped:    ev.CommandsSkipped,
			At:         ev.CompletedAt,
		})
	}

	if r.publisher != nil {
		r.enqueue(r.topics.ProgramCompleted(ev.Program), ev)
	}
}

func (r *Recorder) resultMessage(msg device.Message, kind string, result device.Result, err error, elapsed time.Duration, at time.Time) ResultMessage {
	out := ResultMessage{
		DeviceID:  msg.Target().String(),
		Kind:      kind,
		Command:   string(msg.Kind()),
		Status:    StatusOK,
		Value:     result.Value,
		ElapsedMS: float64(elapsed) / float64(time.Millisecond),
		Timestamp: at,
	}
	if r.names != nil {
		out.Device = r.names.NameOf(msg.Target())
	}
	if payload, ok := msg.Payload(); ok {
		out.Payload = payload
	}
	if err != nil {
		out.Status = StatusError
		out.Error = err.Error()
	}
	return out
}

func (r *Recorder) enqueue(topic string, payload any) {
	select {
	case r.queue <- publication{topic: topic, payload: payload}:
	default:
		r.dropped.Add(1)
		r.logger.Warn("telemetry queue full, dropping message", "topic", topic)
	}
}

func (r *Recorder) publishLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case p := <-r.queue:
			r.publish(p)
		case <-ctx.Done():
			// Drain without blocking.
			for {
				select {
				case p := <-r.queue:
					r.publish(p)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) publish(p publication) {
	if err := r.publisher.PublishJSON(p.topic, p.payload, false); err != nil {
		r.logger.Warn("telemetry publish failed", "topic", p.topic, "error", err)
	}
}
