package program

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/appliance"
	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockRepository keeps executions in memory.
type mockRepository struct {
	mu         sync.Mutex
	executions map[string]*Execution
	creates    int
	updates    int
	failWrites bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{executions: make(map[string]*Execution)}
}

func (m *mockRepository) CreateExecution(_ context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.failWrites {
		return errors.New("disk full")
	}
	cpy := *exec
	m.executions[exec.ID] = &cpy
	return nil
}

func (m *mockRepository) UpdateExecution(_ context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.failWrites {
		return errors.New("disk full")
	}
	if _, ok := m.executions[exec.ID]; !ok {
		return ErrExecutionNotFound
	}
	cpy := *exec
	m.executions[exec.ID] = &cpy
	return nil
}

func (m *mockRepository) GetExecution(_ context.Context, id string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	cpy := *exec
	return &cpy, nil
}

func (m *mockRepository) ListExecutions(_ context.Context, program string, _ int) ([]Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Execution
	for _, e := range m.executions {
		if e.Program == program {
			out = append(out, *e)
		}
	}
	return out, nil
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	mu         sync.Mutex
	broadcasts []wsBroadcast
}

type wsBroadcast struct {
	Channel string
	Payload any
}

func (m *mockWSHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, wsBroadcast{Channel: channel, Payload: payload})
}

func (m *mockWSHub) getBroadcasts() []wsBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]wsBroadcast, len(m.broadcasts))
	copy(cpy, m.broadcasts)
	return cpy
}

// ─── Helper ─────────────────────────────────────────────────────────────────

type testHome struct {
	svc     *dispatch.Service
	runner  *Runner
	repo    *mockRepository
	hub     *mockWSHub
	cat     *Catalogue
	dir     *Directory
	light   *appliance.HueLight
	speaker *appliance.SmartSpeaker
	toilet  *appliance.SmartToilet
}

func setupHome(t *testing.T, latency time.Duration) *testHome {
	t.Helper()

	h := &testHome{
		svc:     dispatch.NewService(),
		repo:    newMockRepository(),
		hub:     &mockWSHub{},
		cat:     NewCatalogue(),
		dir:     NewDirectory(),
		light:   appliance.NewHueLight(latency),
		speaker: appliance.NewSmartSpeaker(latency),
		toilet:  appliance.NewSmartToilet(latency),
	}

	for name, dev := range map[string]device.Device{
		DefaultLightName:   h.light,
		DefaultSpeakerName: h.speaker,
		DefaultToiletName:  h.toilet,
	} {
		id, err := h.svc.RegisterDevice(dev)
		if err != nil {
			t.Fatalf("RegisterDevice %s: %v", name, err)
		}
		if err := h.dir.Bind(name, id); err != nil {
			t.Fatalf("Bind %s: %v", name, err)
		}
	}

	if err := h.cat.AddAll(Defaults()); err != nil {
		t.Fatalf("AddAll: %v", err)
	}

	h.runner = NewRunner(h.cat, h.dir, h.svc, h.repo, h.hub, nil)
	return h
}

func (h *testHome) add(t *testing.T, name string, groups ...Group) {
	t.Helper()
	if err := h.cat.Add(&Program{Name: name, Groups: groups}); err != nil {
		t.Fatalf("Add %s: %v", name, err)
	}
}

func strPtr(s string) *string { return &s }

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestRunner_WakeUp(t *testing.T) {
	h := setupHome(t, 5*time.Millisecond)

	exec, err := h.runner.Run(context.Background(), "wake-up", "test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if exec.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", exec.Status)
	}
	if exec.CommandsTotal != 3 || exec.CommandsCompleted != 3 || exec.CommandsFailed != 0 || exec.CommandsSkipped != 0 {
		t.Errorf("counts = %d/%d/%d/%d", exec.CommandsTotal, exec.CommandsCompleted, exec.CommandsFailed, exec.CommandsSkipped)
	}
	if exec.GroupsTotal != 2 || exec.GroupsCompleted != 2 {
		t.Errorf("groups = %d/%d", exec.GroupsCompleted, exec.GroupsTotal)
	}
	if exec.DurationMS == nil || exec.StartedAt == nil || exec.CompletedAt == nil {
		t.Error("timing fields not populated")
	}
	if exec.TriggerSource == nil || *exec.TriggerSource != "test" {
		t.Errorf("TriggerSource = %v", exec.TriggerSource)
	}

	if !h.light.IsOn() || !h.speaker.IsOn() {
		t.Error("light and speaker should be on")
	}
	if h.speaker.NowPlaying() != DefaultSong {
		t.Errorf("NowPlaying() = %q", h.speaker.NowPlaying())
	}

	stored, err := h.repo.GetExecution(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("journalled status = %s", stored.Status)
	}

	broadcasts := h.hub.getBroadcasts()
	if len(broadcasts) != 1 || broadcasts[0].Channel != EventProgramCompleted {
		t.Fatalf("broadcasts = %+v", broadcasts)
	}
	event, ok := broadcasts[0].Payload.(CompletionEvent)
	if !ok || event.Program != "wake-up" || event.Status != StatusCompleted || event.CommandsCompleted != 3 {
		t.Errorf("broadcast payload = %+v", broadcasts[0].Payload)
	}
}

func TestRunner_WakeUpThenSleep(t *testing.T) {
	h := setupHome(t, 0)
	ctx := context.Background()

	if _, err := h.runner.Run(ctx, "wake-up", "test"); err != nil {
		t.Fatalf("wake-up: %v", err)
	}
	exec, err := h.runner.Run(ctx, "sleep", "test")
	if err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if exec.CommandsCompleted != 4 {
		t.Errorf("CommandsCompleted = %d, want 4", exec.CommandsCompleted)
	}

	if h.light.IsOn() || h.speaker.IsOn() {
		t.Error("light and speaker should be off")
	}
	ops := h.toilet.Operations()
	if len(ops) != 2 || ops[0] != device.CommandFlush || ops[1] != device.CommandClean {
		t.Errorf("toilet operations = %v, want [flush clean]", ops)
	}
}

func TestRunner_SequenceGroupFailureAbortsProgram(t *testing.T) {
	h := setupHome(t, 0)

	// Playing while the speaker is off fails; the next group must not run.
	h.add(t, "play-first",
		Group{Mode: ModeSequence, Commands: []Command{{Device: DefaultSpeakerName, Command: "play_song", Payload: strPtr("X")}}},
		Group{Mode: ModeParallel, Commands: []Command{{Device: DefaultLightName, Command: "switch_on"}}},
	)

	exec, err := h.runner.Run(context.Background(), "play-first", "test")
	if !errors.Is(err, ErrProgramFailed) {
		t.Fatalf("expected ErrProgramFailed, got: %v", err)
	}
	if !errors.Is(err, appliance.ErrPoweredOff) {
		t.Errorf("error does not carry the device reason: %v", err)
	}
	var seqErr *dispatch.SequenceError
	if !errors.As(err, &seqErr) || seqErr.Index != 0 {
		t.Errorf("expected SequenceError at 0, got: %v", err)
	}

	if exec.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", exec.Status)
	}
	if exec.CommandsFailed != 1 || exec.CommandsSkipped != 1 || exec.CommandsCompleted != 0 {
		t.Errorf("counts completed=%d failed=%d skipped=%d", exec.CommandsCompleted, exec.CommandsFailed, exec.CommandsSkipped)
	}
	if h.light.IsOn() {
		t.Error("second group ran after the first failed")
	}

	if len(exec.Failures) != 1 {
		t.Fatalf("len(Failures) = %d", len(exec.Failures))
	}
	f := exec.Failures[0]
	if f.GroupIndex != 0 || f.CommandIndex != 0 || f.Device != DefaultSpeakerName || f.ErrorCode != CodeDeviceFailure {
		t.Errorf("failure = %+v", f)
	}
}

func TestRunner_SequenceStopsMidGroup(t *testing.T) {
	h := setupHome(t, 0)

	h.add(t, "bad-clean",
		Group{Mode: ModeSequence, Commands: []Command{
			{Device: DefaultToiletName, Command: "flush"},
			{Device: DefaultLightName, Command: "flush"}, // lights cannot flush
			{Device: DefaultToiletName, Command: "clean"},
		}},
	)

	exec, err := h.runner.Run(context.Background(), "bad-clean", "test")
	if !errors.Is(err, appliance.ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand, got: %v", err)
	}
	if exec.CommandsCompleted != 1 || exec.CommandsFailed != 1 || exec.CommandsSkipped != 1 {
		t.Errorf("counts completed=%d failed=%d skipped=%d", exec.CommandsCompleted, exec.CommandsFailed, exec.CommandsSkipped)
	}
	if exec.Failures[0].CommandIndex != 1 {
		t.Errorf("failure at command %d, want 1", exec.Failures[0].CommandIndex)
	}

	ops := h.toilet.Operations()
	if len(ops) != 1 || ops[0] != device.CommandFlush {
		t.Errorf("toilet operations = %v, want [flush]", ops)
	}
}

func TestRunner_ParallelGroupReportsEveryFailure(t *testing.T) {
	h := setupHome(t, 0)

	h.add(t, "mixed",
		Group{Mode: ModeParallel, Commands: []Command{
			{Device: DefaultLightName, Command: "switch_on"},
			{Device: DefaultToiletName, Command: "switch_on"},
			{Device: DefaultSpeakerName, Command: "flush"},
		}},
	)

	exec, err := h.runner.Run(context.Background(), "mixed", "test")

	var agg *dispatch.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("expected *AggregateError, got: %v", err)
	}
	if len(agg.Outcomes) != 3 {
		t.Errorf("len(Outcomes) = %d, want 3", len(agg.Outcomes))
	}

	if exec.CommandsCompleted != 1 || exec.CommandsFailed != 2 {
		t.Errorf("counts completed=%d failed=%d", exec.CommandsCompleted, exec.CommandsFailed)
	}
	indexes := map[int]bool{}
	for _, f := range exec.Failures {
		indexes[f.CommandIndex] = true
	}
	if !indexes[1] || !indexes[2] {
		t.Errorf("failure indexes = %v, want 1 and 2", indexes)
	}
	// Siblings are never cancelled.
	if !h.light.IsOn() {
		t.Error("successful sibling did not run")
	}
}

func TestRunner_UnboundDeviceFailsBeforeDispatch(t *testing.T) {
	h := setupHome(t, 0)

	h.add(t, "ghostly",
		Group{Mode: ModeParallel, Commands: []Command{{Device: DefaultLightName, Command: "switch_on"}}},
		Group{Mode: ModeParallel, Commands: []Command{{Device: "ghost", Command: "switch_on"}}},
	)

	if err := h.runner.Compile("ghostly"); !errors.Is(err, ErrDeviceNotBound) {
		t.Errorf("Compile = %v, want ErrDeviceNotBound", err)
	}

	exec, err := h.runner.Run(context.Background(), "ghostly", "test")
	if !errors.Is(err, ErrDeviceNotBound) {
		t.Fatalf("Run = %v, want ErrDeviceNotBound", err)
	}
	if exec != nil {
		t.Error("execution recorded for a program that could not compile")
	}
	if h.light.IsOn() {
		t.Error("device work started before compilation failed")
	}
	if h.repo.creates != 0 {
		t.Error("journal written for a program that could not compile")
	}
}

func TestRunner_UnknownDeviceID(t *testing.T) {
	h := setupHome(t, 0)

	// Bound in the directory but never registered with the service.
	if err := h.dir.Bind("phantom", "not-a-registered-id"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	h.add(t, "phantom-run",
		Group{Mode: ModeParallel, Commands: []Command{
			{Device: DefaultLightName, Command: "switch_on"},
			{Device: "phantom", Command: "switch_on"},
		}},
	)

	exec, err := h.runner.Run(context.Background(), "phantom-run", "test")
	if !errors.Is(err, dispatch.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got: %v", err)
	}
	if len(exec.Failures) != 1 || exec.Failures[0].ErrorCode != CodeUnknownDevice || exec.Failures[0].CommandIndex != 1 {
		t.Errorf("failures = %+v", exec.Failures)
	}
	if exec.CommandsCompleted != 1 {
		t.Errorf("CommandsCompleted = %d, want 1", exec.CommandsCompleted)
	}
}

func TestRunner_ProgramNotFound(t *testing.T) {
	h := setupHome(t, 0)
	if _, err := h.runner.Run(context.Background(), "nope", "test"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("Run = %v, want ErrProgramNotFound", err)
	}
}

func TestRunner_Timeout(t *testing.T) {
	h := setupHome(t, time.Minute)
	h.runner.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	exec, err := h.runner.Run(context.Background(), "sleep", "test")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not bound the run")
	}

	if exec.Status != StatusCancelled {
		t.Errorf("Status = %s, want cancelled", exec.Status)
	}
	if exec.CommandsSkipped != 2 {
		t.Errorf("CommandsSkipped = %d, want 2", exec.CommandsSkipped)
	}
	for _, f := range exec.Failures {
		if f.ErrorCode != CodeTimeout {
			t.Errorf("failure code = %s, want %s", f.ErrorCode, CodeTimeout)
		}
	}

	stored, _ := h.repo.GetExecution(context.Background(), exec.ID)
	if stored == nil || stored.Status != StatusCancelled {
		t.Error("cancelled run was not journalled")
	}
}

func TestRunner_JournalFailureDoesNotStopRun(t *testing.T) {
	h := setupHome(t, 0)
	h.repo.failWrites = true

	exec, err := h.runner.Run(context.Background(), "wake-up", "test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != StatusCompleted {
		t.Errorf("Status = %s", exec.Status)
	}
	if h.repo.creates != 1 || h.repo.updates != 1 {
		t.Errorf("journal calls = %d/%d, want 1/1", h.repo.creates, h.repo.updates)
	}
}

func TestRunner_NilCollaborators(t *testing.T) {
	h := setupHome(t, 0)
	runner := NewRunner(h.cat, h.dir, h.svc, nil, nil, nil)

	if _, err := runner.Run(context.Background(), "wake-up", ""); err != nil {
		t.Fatalf("Run without repo or hub: %v", err)
	}
}

func TestRunner_ConcurrentRuns(t *testing.T) {
	h := setupHome(t, time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.runner.Run(context.Background(), "wake-up", "test"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Run: %v", err)
	}
}

func TestFailureCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: dispatch.ErrUnknownDevice, want: CodeUnknownDevice},
		{err: &dispatch.DeviceError{Err: context.DeadlineExceeded}, want: CodeTimeout},
		{err: context.Canceled, want: CodeCancelled},
		{err: errors.New("broken"), want: CodeDeviceFailure},
	}
	for _, tt := range tests {
		if got := failureCode(tt.err); got != tt.want {
			t.Errorf("failureCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestHubs_FanOut(t *testing.T) {
	a, b := &mockWSHub{}, &mockWSHub{}
	hub := Hubs(a, nil, b)
	hub.Broadcast(EventProgramCompleted, "x")

	if len(a.getBroadcasts()) != 1 || len(b.getBroadcasts()) != 1 {
		t.Errorf("broadcasts = %d, %d; want 1, 1", len(a.getBroadcasts()), len(b.getBroadcasts()))
	}
}
