package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// ─── Group barrier scenarios ────────────────────────────────────────────────

// powered is a device that turns on after a delay.
type powered struct {
	on    atomic.Bool
	delay time.Duration
}

func (p *powered) Accept(_ context.Context, msg device.Message) (device.Result, error) {
	time.Sleep(p.delay)
	switch msg.Kind() {
	case device.CommandSwitchOn:
		p.on.Store(true)
	case device.CommandSwitchOff:
		p.on.Store(false)
	}
	return device.Result{Value: "ok"}, nil
}

// speaker plays only when it and the light it depends on are both on, and
// records what it observed when the song started.
type speaker struct {
	powered
	light          *powered
	observedLight  atomic.Bool
	observedSelf   atomic.Bool
	playbackCalled atomic.Bool
}

func (s *speaker) Accept(ctx context.Context, msg device.Message) (device.Result, error) {
	if msg.Kind() != device.CommandPlaySong {
		return s.powered.Accept(ctx, msg)
	}
	s.playbackCalled.Store(true)
	s.observedLight.Store(s.light.on.Load())
	s.observedSelf.Store(s.on.Load())
	if !s.on.Load() {
		return device.Result{}, errors.New("speaker is off")
	}
	title, _ := msg.Payload()
	return device.Result{Value: "playing " + title}, nil
}

func TestScenario_PowerOnThenPlay(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	light := &powered{delay: 25 * time.Millisecond}
	spk := &speaker{powered: powered{delay: 10 * time.Millisecond}, light: light}
	lightID := mustRegister(t, svc, light)
	spkID := mustRegister(t, svc, spk)

	// Group 1: both devices on, in parallel.
	if _, err := RunParallel(ctx,
		mustSend(t, svc, mustMessage(t, lightID, device.CommandSwitchOn)),
		mustSend(t, svc, mustMessage(t, spkID, device.CommandSwitchOn)),
	); err != nil {
		t.Fatalf("group 1: %v", err)
	}

	// Group 2 is dispatched only after group 1 returned.
	res, err := RunSequence(ctx, mustSend(t, svc, mustMessage(t, spkID, device.CommandPlaySong, "X")))
	if err != nil {
		t.Fatalf("group 2: %v", err)
	}

	if res.Value != "playing X" {
		t.Errorf("result = %q", res.Value)
	}
	if !spk.observedLight.Load() || !spk.observedSelf.Load() {
		t.Errorf("playback observed light=%v speaker=%v, want both on",
			spk.observedLight.Load(), spk.observedSelf.Load())
	}
}

// toilet records when each operation starts and ends.
type toilet struct {
	tl *timeline
}

func (d *toilet) Accept(_ context.Context, msg device.Message) (device.Result, error) {
	name := string(msg.Kind())
	d.tl.add(name + ":start")
	if msg.Kind() == device.CommandFlush {
		time.Sleep(20 * time.Millisecond)
	}
	d.tl.add(name + ":end")
	return device.Result{Value: name + "ed"}, nil
}

func TestScenario_FlushThenClean(t *testing.T) {
	svc := NewService()
	tl := &timeline{}
	id := mustRegister(t, svc, &toilet{tl: tl})

	res, err := RunSteps(context.Background(),
		svc.Step(mustMessage(t, id, device.CommandFlush)),
		svc.Step(mustMessage(t, id, device.CommandClean)),
	)
	if err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if res.Value != "cleaned" {
		t.Errorf("result = %q, want cleaned", res.Value)
	}

	flushEnd, cleanStart := tl.index("flush:end"), tl.index("clean:start")
	if flushEnd < 0 || cleanStart < 0 || flushEnd > cleanStart {
		t.Errorf("clean started before flush finished: %v", tl.events)
	}
}

func TestScenario_EagerSequenceStillObservesInOrder(t *testing.T) {
	// With eager dispatch both operations run at once; RunSequence only
	// promises the flush outcome is observed before the clean outcome.
	svc := NewService()
	tl := &timeline{}
	id := mustRegister(t, svc, &toilet{tl: tl})

	flush := mustSend(t, svc, mustMessage(t, id, device.CommandFlush))
	clean := mustSend(t, svc, mustMessage(t, id, device.CommandClean))

	res, err := RunSequence(context.Background(), flush, clean)
	if err != nil {
		t.Fatalf("RunSequence: %v", err)
	}
	if res.Value != "cleaned" {
		t.Errorf("result = %q, want cleaned", res.Value)
	}
	if tl.index("flush:end") < 0 {
		t.Error("RunSequence returned before flush completed")
	}
}

func TestScenario_GroupFailureStopsProgram(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	broken := mustRegister(t, svc, &countingDevice{err: errors.New("no power")})
	fine := mustRegister(t, svc, &countingDevice{value: "on"})
	next := &countingDevice{}
	nextID := mustRegister(t, svc, next)

	groups := []func() error{
		func() error {
			_, err := RunParallel(ctx,
				mustSend(t, svc, mustMessage(t, broken, device.CommandSwitchOn)),
				mustSend(t, svc, mustMessage(t, fine, device.CommandSwitchOn)),
			)
			return err
		},
		func() error {
			_, err := RunSteps(ctx, svc.Step(mustMessage(t, nextID, device.CommandPlaySong, "X")))
			return err
		},
	}

	failedAt := -1
	for i, run := range groups {
		if err := run(); err != nil {
			failedAt = i
			break
		}
	}

	if failedAt != 0 {
		t.Errorf("failedAt = %d, want 0", failedAt)
	}
	if next.calls.Load() != 0 {
		t.Error("second group was dispatched after the first failed")
	}
}
