// Package influxdb provides InfluxDB connectivity for graydispatch.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring.
//
// Two measurements are written:
//   - command_latency: one point per device command (tags device_id, kind,
//     command, outcome; field latency_ms)
//   - program_runs: one point per program run (tags program, status, trigger;
//     fields duration_ms, completed, failed, skipped)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteProgramMetric(influxdb.ProgramSample{Program: "sleep", Status: "completed"})
//
// All methods are safe for concurrent use. A nil or closed *Client drops
// writes silently, so callers need no enabled checks of their own.
package influxdb
