package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// Subscriber is the MQTT surface the Listener needs. *mqtt.Client satisfies it.
type Subscriber interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Dispatcher sends one message. *dispatch.Service satisfies it.
type Dispatcher interface {
	SendMsg(ctx context.Context, msg device.Message) (*dispatch.Pending, error)
}

// Resolver maps device names to IDs. *program.Directory satisfies it.
type Resolver interface {
	Resolve(name string) (device.ID, error)
}

// Response codes published alongside a failed command request.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeUnavailable    = "UNAVAILABLE"
)

// ErrListenerStopped is reported to requests that arrive while the
// listener is shutting down.
var ErrListenerStopped = errors.New("telemetry: listener stopped")

// DefaultRequestTimeout bounds how long one MQTT command request may wait
// for its device.
const DefaultRequestTimeout = 30 * time.Second

// subscribeQoS is used for the command request subscription.
const subscribeQoS = 1

// CommandRequest is the JSON body expected on graylogic/dispatch/command/{device_name}.
type CommandRequest struct {
	// ID is echoed in the response for correlation. Optional.
	ID      string  `json:"id,omitempty"`
	Command string  `json:"command"`
	Payload *string `json:"payload,omitempty"`
}

// CommandResponse is published on graylogic/dispatch/response/{device_name}.
type CommandResponse struct {
	ID        string    `json:"id,omitempty"`
	Device    string    `json:"device"`
	DeviceID  string    `json:"device_id,omitempty"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Value     string    `json:"value,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener accepts device commands over MQTT and dispatches them.
//
// Each request is resolved by device name, dispatched through the
// Dispatcher and answered on the response topic once the device reports.
// Requests are handled concurrently; Stop waits for in-flight ones.
type Listener struct {
	mqtt       Subscriber
	dispatcher Dispatcher
	resolver   Resolver
	logger     Logger
	topics     mqtt.Topics
	timeout    time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener creates a Listener. A nil logger disables logging.
func NewListener(sub Subscriber, dispatcher Dispatcher, resolver Resolver, logger Logger) *Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{
		mqtt:       sub,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger,
		timeout:    DefaultRequestTimeout,
	}
}

// SetTimeout changes the per-request timeout. Non-positive values are ignored.
func (l *Listener) SetTimeout(d time.Duration) {
	if d > 0 {
		l.timeout = d
	}
}

// Start subscribes to command requests for every device.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return errors.New("telemetry: listener already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	if err := l.mqtt.Subscribe(l.topics.AllCommandRequests(), subscribeQoS, l.handle); err != nil {
		l.cancel()
		return fmt.Errorf("subscribing to command requests: %w", err)
	}
	l.running = true

	l.logger.Info("mqtt command listener started", "topic", l.topics.AllCommandRequests())
	return nil
}

// Stop unsubscribes and waits for in-flight requests to finish. Requests
// delivered after Stop begins are answered with CodeUnavailable.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	// Unsubscribe can wait on the broker; handlers must not block behind it.
	if err := l.mqtt.Unsubscribe(l.topics.AllCommandRequests()); err != nil {
		l.logger.Warn("unsubscribing from command requests", "error", err)
	}

	l.wg.Wait()
}

// handle is the MQTT message handler. Errors are logged by the MQTT client.
func (l *Listener) handle(topic string, payload []byte) error {
	name, ok := l.topics.ParseCommandRequest(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		l.respondError(name, req, "", CodeInvalidRequest, err)
		return nil
	}

	id, err := l.resolver.Resolve(name)
	if err != nil {
		l.respondError(name, req, "", program.CodeUnknownDevice, err)
		return nil
	}

	msg, err := buildMessage(id, req)
	if err != nil {
		l.respondError(name, req, id, CodeUnknownCommand, err)
		return nil
	}

	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.respondError(name, req, id, CodeUnavailable, ErrListenerStopped)
		return nil
	}
	ctx := l.ctx
	l.wg.Add(1)
	l.mu.Unlock()

	pending, err := l.dispatcher.SendMsg(ctx, msg)
	if err != nil {
		l.wg.Done()
		l.respondError(name, req, id, program.CodeUnknownDevice, err)
		return nil
	}

	l.logger.Debug("mqtt command dispatched", "device", name, "command", msg.Kind(), "request_id", req.ID)

	go func() {
		defer l.wg.Done()
		l.await(ctx, name, id, req, pending)
	}()
	return nil
}

func (l *Listener) await(ctx context.Context, name string, id device.ID, req CommandRequest, pending *dispatch.Pending) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	result, err := pending.Await(ctx)
	if err != nil {
		code := program.CodeDeviceFailure
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = program.CodeTimeout
		case errors.Is(err, context.Canceled):
			code = program.CodeCancelled
		}
		l.respondError(name, req, id, code, err)
		return
	}

	l.respond(name, CommandResponse{
		ID:        req.ID,
		Device:    name,
		DeviceID:  id.String(),
		Command:   req.Command,
		Status:    StatusOK,
		Value:     result.Value,
		Timestamp: time.Now().UTC(),
	})
}

func (l *Listener) respondError(name string, req CommandRequest, id device.ID, code string, err error) {
	l.logger.Warn("mqtt command failed", "device", name, "command", req.Command, "code", code, "error", err)
	l.respond(name, CommandResponse{
		ID:        req.ID,
		Device:    name,
		DeviceID:  id.String(),
		Command:   req.Command,
		Status:    StatusError,
		Code:      code,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (l *Listener) respond(name string, resp CommandResponse) {
	if err := l.mqtt.PublishJSON(l.topics.CommandResponse(name), resp, false); err != nil {
		l.logger.Warn("publishing command response", "device", name, "error", err)
	}
}

func buildMessage(id device.ID, req CommandRequest) (device.Message, error) {
	kind, err := device.ParseCommandKind(req.Command)
	if err != nil {
		return device.Message{}, err
	}
	if req.Payload != nil {
		return device.NewMessage(id, kind, *req.Payload)
	}
	return device.NewMessage(id, kind)
}
