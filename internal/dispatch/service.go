package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Logger defines the logging interface used by the Service.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service routes messages to registered devices.
//
// Each Service owns its own device.Registry; there is no process-wide
// registry, so independent Services never see each other's devices.
//
// Thread Safety: all methods are safe for concurrent use. SetLogger and
// SetCommandTimeout are meant to be called during startup, before the first
// SendMsg. SetObserver may be called at any time; commands already started
// report to the observer they started with.
type Service struct {
	registry *device.Registry
	logger   Logger
	observer atomic.Pointer[observerSlot]

	// commandTimeout bounds each device call; zero means no bound.
	commandTimeout time.Duration

	inflight sync.WaitGroup
}

// NewService creates a Service with an empty registry.
func NewService() *Service {
	s := &Service{
		registry: device.NewRegistry(),
		logger:   noopLogger{},
	}
	s.observer.Store(&observerSlot{noopObserver{}})
	return s
}

// SetLogger sets the logger for the service and its registry.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
	s.registry.SetLogger(logger)
}

// SetObserver installs an observer for command lifecycle events.
// Passing nil restores the no-op observer.
func (s *Service) SetObserver(obs Observer) {
	if obs == nil {
		obs = noopObserver{}
	}
	s.observer.Store(&observerSlot{obs})
}

// SetCommandTimeout bounds every device call started by SendMsg.
// A call that outlives the timeout fails with a DeviceError wrapping
// context.DeadlineExceeded. Zero disables the bound.
func (s *Service) SetCommandTimeout(d time.Duration) {
	s.commandTimeout = d
}

// Registry returns the registry owned by this service.
func (s *Service) Registry() *device.Registry {
	return s.registry
}

// RegisterDevice hands dev to the registry and returns its new ID.
// The device is dispatch-reachable by that ID from this point on.
func (s *Service) RegisterDevice(dev device.Device) (device.ID, error) {
	id, err := s.registry.Register(dev)
	if err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}
	return id, nil
}

// SendMsg starts delivery of msg to its target device and returns at once.
//
// If the target was never registered SendMsg fails with ErrUnknownDevice and
// no device work is started. Otherwise the device's Accept runs on its own
// goroutine and the returned Pending settles with its outcome. Device
// failures are wrapped in a *DeviceError; the result value is passed through
// untouched.
//
// ctx is handed to the device and cancels its work.
func (s *Service) SendMsg(ctx context.Context, msg device.Message) (*Pending, error) {
	dev, err := s.registry.Lookup(msg.Target())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, msg.Target())
	}

	p := newPending(msg)
	obs := s.observer.Load().Observer
	obs.CommandStarted(msg)

	s.inflight.Add(1)
	go s.deliver(ctx, dev, p, obs)

	return p, nil
}

// Step returns a deferred dispatch of msg for use with RunSteps.
func (s *Service) Step(msg device.Message) Step {
	return Step{msg: msg, send: s.SendMsg}
}

// Wait blocks until every device call started by SendMsg has returned.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// deliver runs one device call, reports it to obs and settles p.
func (s *Service) deliver(ctx context.Context, dev device.Device, p *Pending, obs Observer) {
	defer s.inflight.Done()

	if s.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := invoke(ctx, dev, p.msg)
	elapsed := time.Since(start)

	if err != nil {
		err = &DeviceError{
			DeviceID: p.msg.Target(),
			Command:  p.msg.Kind(),
			Err:      err,
		}
	}

	s.logger.Debug("command finished",
		"device_id", p.msg.Target(),
		"command", p.msg.Kind(),
		"elapsed", elapsed,
		"error", err,
	)

	obs.CommandFinished(p.msg, result, err, elapsed)
	p.complete(result, err)
}

// invoke calls dev.Accept and returns as soon as either the device reports
// or ctx ends. A device that ignores ctx keeps running on its own goroutine
// until it returns; its late outcome is discarded.
func invoke(ctx context.Context, dev device.Device, msg device.Message) (device.Result, error) {
	type outcome struct {
		result device.Result
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("%w: %v", ErrDevicePanic, r)}
			}
			ch <- out
		}()
		out.result, out.err = dev.Accept(ctx, msg)
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		// Prefer a result that raced the cancellation.
		select {
		case out := <-ch:
			return out.result, out.err
		default:
		}
		return device.Result{}, ctx.Err()
	}
}
