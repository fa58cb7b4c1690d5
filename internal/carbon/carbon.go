// Package carbon emits metrics in the carbon plaintext protocol over UDP.
// Delivery is fire-and-forget: datagrams are never acknowledged or
// retried, and consumers accept loss.
package carbon

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// unavailableMarker is rendered when a metric has no value, for instance
// utilization without carrier lock. It parses as a float (NaN) and keeps
// the line shape intact; backends that only accept finite numbers drop
// the point, which is this channel's accepted loss mode.
const unavailableMarker = "nan"

// Metric is one <path> <value> <timestamp> observation. A nil Value marks
// the observation as unavailable.
type Metric struct {
	Path      string
	Value     *float64
	Timestamp time.Time
}

// String renders the metric as a single protocol line without the
// trailing newline.
func (m Metric) String() string {
	value := unavailableMarker
	if m.Value != nil {
		value = strconv.FormatFloat(*m.Value, 'f', -1, 64)
	}
	return fmt.Sprintf("%s %s %d", m.Path, value, m.Timestamp.Unix())
}

// ParseMetric parses a protocol line produced by Metric.String. A nan
// value yields a Metric with a nil Value.
func ParseMetric(line string) (Metric, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 {
		return Metric{}, fmt.Errorf("invalid metric line: expected 3 fields, got %d", len(fields))
	}

	var m Metric
	m.Path = fields[0]

	if fields[1] != unavailableMarker {
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Metric{}, fmt.Errorf("invalid metric value: %w", err)
		}
		m.Value = &value
	}

	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Metric{}, fmt.Errorf("invalid metric timestamp: %w", err)
	}
	m.Timestamp = time.Unix(ts, 0)

	return m, nil
}

// TransportError indicates a socket-level failure; the affected samples
// are dropped and the next cycle proceeds normally.
type TransportError struct {
	Err error
}

func NewTransportError(err error) *TransportError {
	return &TransportError{Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("carbon transport error: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client sends metrics to a carbon endpoint, one datagram per line.
type Client struct {
	conn net.Conn
}

// Dial resolves the collector address and binds the sending socket.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("dialing %s: %w", addr, err))
	}
	return &Client{conn: conn}, nil
}

// Send transmits the given metrics. The first socket error aborts the
// batch; remaining metrics of the cycle are dropped, as the next cycle
// resends fresh values anyway.
func (c *Client) Send(metrics []Metric) error {
	for _, m := range metrics {
		if _, err := c.conn.Write([]byte(m.String() + "\n")); err != nil {
			return NewTransportError(fmt.Errorf("sending %s: %w", m.Path, err))
		}
	}
	return nil
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
