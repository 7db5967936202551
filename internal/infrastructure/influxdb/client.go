package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes graydispatch metrics to one InfluxDB v2 bucket.
//
// Writes never block the caller: points are batched by the write API and
// sent in the background, and failures arrive on the SetOnError callback.
// All methods are safe for concurrent use, and a nil *Client drops writes.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected atomic.Bool
	points    atomic.Int64 // points handed to the write API
	failures  atomic.Int64 // failed batch writes
	lastError atomic.Pointer[string]

	errMu   sync.RWMutex
	onError func(err error)
}

// Stats describes what the client has written so far.
type Stats struct {
	Connected     bool   `json:"connected"`
	URL           string `json:"url"`
	Org           string `json:"org"`
	Bucket        string `json:"bucket"`
	PointsWritten int64  `json:"points_written"`
	WriteFailures int64  `json:"write_failures"`
	LastError     string `json:"last_error,omitempty"`
}

// Connect pings the configured server and prepares the batching write API.
// It returns ErrDisabled when InfluxDB is turned off in cfg.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	c.connected.Store(true)

	go c.watchWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions maps the batch settings, falling back to defaults for
// non-positive values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func (c *Client) watchWriteErrors(errs <-chan error) {
	for err := range errs {
		c.recordWriteError(err)
	}
}

func (c *Client) recordWriteError(err error) {
	c.failures.Add(1)
	msg := err.Error()
	c.lastError.Store(&msg)

	c.errMu.RLock()
	callback := c.onError
	c.errMu.RUnlock()
	if callback != nil {
		callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
}

// enqueue hands p to the write API. Points written after Close are dropped.
func (c *Client) enqueue(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.points.Add(1)
	c.writeAPI.WritePoint(p)
}

// Close flushes buffered points and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.connected.Swap(false) {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: %s reports unhealthy", c.cfg.URL)
	}
	return nil
}

// HealthDetails implements the API's detailed health view.
func (c *Client) HealthDetails() any {
	return c.Stats()
}

// Stats returns write counters and the destination.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{
		Connected:     c.IsConnected(),
		URL:           c.cfg.URL,
		Org:           c.cfg.Org,
		Bucket:        c.cfg.Bucket,
		PointsWritten: c.points.Load(),
		WriteFailures: c.failures.Load(),
	}
	if last := c.lastError.Load(); last != nil {
		s.LastError = *last
	}
	return s
}

// IsConnected reports whether the client is open. It does not contact the
// server; HealthCheck does.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// SetOnError sets the callback for asynchronous write failures. Errors
// passed to it wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.errMu.Lock()
	c.onError = callback
	c.errMu.Unlock()
}

// Flush sends buffered points now. It is a no-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
