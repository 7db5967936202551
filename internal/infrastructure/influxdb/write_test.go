package influxdb

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
)

func TestCommandPoint(t *testing.T) {
	at := time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		sample CommandSample
		want   []string
		absent []string
	}{
		{
			name:   "success with kind",
			sample: CommandSample{DeviceID: "d1", Kind: "hue_light", Command: "switch_on", Elapsed: 1500 * time.Microsecond, At: at},
			want:   []string{"command_latency,", "command=switch_on", "device_id=d1", "kind=hue_light", "outcome=ok", "latency_ms=1.5"},
		},
		{
			name:   "failure without kind",
			sample: CommandSample{DeviceID: "d2", Command: "flush", Err: errors.New("x"), At: at},
			want:   []string{"outcome=error", "latency_ms=0"},
			absent: []string{"kind="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(commandPoint(tt.sample), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(line, a) {
					t.Errorf("line %q should not contain %q", line, a)
				}
			}
		})
	}
}

func TestProgramPoint(t *testing.T) {
	p := programPoint(ProgramSample{
		Program:    "sleep",
		Status:     "failed",
		Trigger:    "api",
		DurationMS: 120,
		Completed:  2,
		Failed:     1,
		Skipped:    1,
	})

	if p.Name() != MeasurementProgramRuns {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Time().IsZero() {
		t.Error("zero sample time not replaced with now")
	}

	line := write.PointToLineProtocol(p, time.Nanosecond)
	for _, w := range []string{"program=sleep", "status=failed", "trigger=api", "duration_ms=120i", "failed=1i", "skipped=1i"} {
		if !strings.Contains(line, w) {
			t.Errorf("line %q missing %q", line, w)
		}
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{name: "configured", cfg: config.InfluxDBConfig{BatchSize: 50, FlushInterval: 2}, wantBatch: 50, wantFlush: 2000},
		{name: "defaults", cfg: config.InfluxDBConfig{}, wantBatch: defaultBatchSize, wantFlush: 10000},
		{name: "negative", cfg: config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, wantBatch: defaultBatchSize, wantFlush: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(tt.cfg)
			if opts.BatchSize() != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), tt.wantBatch)
			}
			if opts.FlushInterval() != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", opts.FlushInterval(), tt.wantFlush)
			}
		})
	}
}

func TestRecordWriteError(t *testing.T) {
	c := &Client{cfg: config.InfluxDBConfig{URL: "http://influx:8086", Org: "graylogic", Bucket: "dispatch"}}

	var got error
	c.SetOnError(func(err error) { got = err })
	c.recordWriteError(errors.New("401 unauthorized"))

	if !errors.Is(got, ErrWriteFailed) || !strings.Contains(got.Error(), "401 unauthorized") {
		t.Errorf("callback error = %v, want wrapped ErrWriteFailed", got)
	}

	st := c.Stats()
	if st.WriteFailures != 1 || st.LastError != "401 unauthorized" {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Connected || st.Bucket != "dispatch" {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestEnqueue_DroppedWhenClosed(t *testing.T) {
	c := &Client{}

	c.WriteCommandMetric(CommandSample{DeviceID: "x", Command: "flush", At: time.Now()})
	if n := c.Stats().PointsWritten; n != 0 {
		t.Errorf("PointsWritten = %d for a closed client, want 0", n)
	}
	if _, ok := c.HealthDetails().(Stats); !ok {
		t.Errorf("HealthDetails() = %T, want Stats", c.HealthDetails())
	}

	var nilClient *Client
	if st := nilClient.Stats(); st != (Stats{}) {
		t.Errorf("nil Stats() = %+v", st)
	}
}
