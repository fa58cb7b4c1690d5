package carbon

import (
	"errors"
	"net"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestMetricString(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		metric Metric
		want   string
	}{
		{
			name:   "value",
			metric: Metric{Path: "docsis.qam256.546.utilization", Value: floatPtr(0.42), Timestamp: ts},
			want:   "docsis.qam256.546.utilization 0.42 1700000000",
		},
		{
			name:   "zero value",
			metric: Metric{Path: "docsis.qam64.130.bps", Value: floatPtr(0), Timestamp: ts},
			want:   "docsis.qam64.130.bps 0 1700000000",
		},
		{
			name:   "unavailable",
			metric: Metric{Path: "docsis.qam256.546.utilization", Timestamp: ts},
			want:   "docsis.qam256.546.utilization nan 1700000000",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.metric.String(); got != test.want {
				t.Errorf("String() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("docsis.qam256.546.bps 15040000 1700000000\n")
	if err != nil {
		t.Fatalf("ParseMetric() error: %s", err)
	}
	if m.Path != "docsis.qam256.546.bps" {
		t.Errorf("Path = %q", m.Path)
	}
	if m.Value == nil || *m.Value != 15040000 {
		t.Errorf("Value = %v, want 15040000", m.Value)
	}
	if !m.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Timestamp = %s", m.Timestamp)
	}
}

func TestParseMetricUnavailable(t *testing.T) {
	m, err := ParseMetric("docsis.qam256.546.utilization nan 1700000000")
	if err != nil {
		t.Fatalf("ParseMetric() error: %s", err)
	}
	if m.Value != nil {
		t.Errorf("Value = %v, want nil", m.Value)
	}
}

func TestParseMetricInvalid(t *testing.T) {
	lines := []string{
		"",
		"docsis.qam256.546.bps 1",
		"docsis.qam256.546.bps one 1700000000",
		"docsis.qam256.546.bps 1 later",
	}
	for _, line := range lines {
		if _, err := ParseMetric(line); err == nil {
			t.Errorf("ParseMetric(%q) expected an error", line)
		}
	}
}

func TestClientSend(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error: %s", err)
	}
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error: %s", err)
	}
	defer client.Close()

	ts := time.Unix(1700000000, 0)
	metrics := []Metric{
		{Path: "docsis.qam256.546.bps", Value: floatPtr(15040000), Timestamp: ts},
		{Path: "docsis.qam256.546.utilization", Timestamp: ts},
	}
	if err = client.Send(metrics); err != nil {
		t.Fatalf("Send() error: %s", err)
	}

	// Each metric must arrive as its own datagram.
	buf := make([]byte, 1024)
	for i, want := range []string{
		"docsis.qam256.546.bps 15040000 1700000000\n",
		"docsis.qam256.546.utilization nan 1700000000\n",
	} {
		if err = server.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.Fatalf("SetReadDeadline() error: %s", err)
		}
		n, _, err := server.ReadFrom(buf)
		if err != nil {
			t.Fatalf("ReadFrom() datagram %d error: %s", i, err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("datagram %d = %q, want %q", i, got, want)
		}
	}
}

func TestDialInvalidAddress(t *testing.T) {
	_, err := Dial("not-an-address")
	if err == nil {
		t.Fatal("Dial() expected an error")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("Dial() error = %T, want *TransportError", err)
	}
}
