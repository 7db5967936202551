// Package telemetry connects the dispatcher to MQTT and InfluxDB.
//
// Recorder observes every device command (dispatch.Observer) and every
// finished program run (program.WSHub). It publishes results on
// graylogic/dispatch/result/{device_id} and program summaries on
// graylogic/dispatch/program/{program}/completed, and writes command_latency
// and program_runs points.
//
// Listener lets other systems drive devices by name. A JSON request on
// graylogic/dispatch/command/{device_name}:
//
//	{"id": "req-1", "command": "play_song", "payload": "Never Gonna Give You Up"}
//
// is dispatched and answered on graylogic/dispatch/response/{device_name}.
package telemetry
