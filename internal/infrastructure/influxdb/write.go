package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by graydispatch.
const (
	MeasurementCommandLatency = "command_latency"
	MeasurementProgramRuns    = "program_runs"
)

// CommandSample is one finished device command.
type CommandSample struct {
	DeviceID string
	Kind     string // device kind, empty if unknown
	Command  string
	Elapsed  time.Duration
	Err      error
	At       time.Time
}

// ProgramSample is one finished program run.
type ProgramSample struct {
	Program    string
	Status     string
	Trigger    string
	DurationMS int
	Completed  int
	Failed     int
	Skipped    int
	At         time.Time
}

// WriteCommandMetric records how long a device command took and whether it
// succeeded. The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteCommandMetric(influxdb.CommandSample{
//	    DeviceID: string(id), Command: "flush", Elapsed: 250 * time.Millisecond,
//	})
func (c *Client) WriteCommandMetric(s CommandSample) {
	c.enqueue(commandPoint(s))
}

// WriteProgramMetric records the outcome of one program run.
func (c *Client) WriteProgramMetric(s ProgramSample) {
	c.enqueue(programPoint(s))
}

func commandPoint(s CommandSample) *write.Point {
	tags := map[string]string{
		"device_id": s.DeviceID,
		"command":   s.Command,
		"outcome":   "ok",
	}
	if s.Kind != "" {
		tags["kind"] = s.Kind
	}
	if s.Err != nil {
		tags["outcome"] = "error"
	}

	return write.NewPoint(
		MeasurementCommandLatency,
		tags,
		map[string]interface{}{
			"latency_ms": float64(s.Elapsed.Microseconds()) / 1000,
		},
		timestampOrNow(s.At),
	)
}

func programPoint(s ProgramSample) *write.Point {
	tags := map[string]string{
		"program": s.Program,
		"status":  s.Status,
	}
	if s.Trigger != "" {
		tags["trigger"] = s.Trigger
	}

	return write.NewPoint(
		MeasurementProgramRuns,
		tags,
		map[string]interface{}{
			"duration_ms": s.DurationMS,
			"completed":   s.Completed,
			"failed":      s.Failed,
			"skipped":     s.Skipped,
		},
		timestampOrNow(s.At),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
