// Package api implements the HTTP REST API and WebSocket server for graydispatch.
//
// This package provides:
//   - REST endpoints to list and create devices and send them single commands
//   - REST endpoints to list, add and run programs and read their history
//   - WebSocket hub broadcasting command and program events
//   - Optional JWT authentication with ticket-based WebSocket auth
//
// # Architecture
//
// The API server sits on top of the dispatch service and the program runner.
// A single command request is synchronous: it dispatches the message and
// waits for the device to settle it. A program run also blocks until every
// group has finished and returns the execution record.
//
// The Hub implements dispatch.Observer and program.WSHub, so it can be wired
// in as the service observer and the runner's broadcast target.
//
// # Security
//
// When security.jwt.secret is empty every route is open. Otherwise protected
// routes need an HS256 bearer token (see IssueToken), and WebSocket
// connections use single-use tickets so the token never appears in a URL.
package api
