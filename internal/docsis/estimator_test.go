package docsis

import (
	"math"
	"testing"
	"time"
)

func testChannel(m Modulation) Channel {
	return Channel{
		FrequencyHz: 546_000_000,
		Modulation:  m,
		SymbolRate:  DefaultSymbolRate,
		MetricName:  MetricName("docsis", m, 546_000_000),
	}
}

func TestEstimate_Unlocked(t *testing.T) {
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	r := Reading{Locked: false, Packets: 12345, Timestamp: time.Now()}
	sample, err := e.Estimate(r, testChannel(QAM256), time.Second)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if sample.Utilization != nil {
		t.Errorf("expected unavailable utilization for unlocked reading, got %v", *sample.Utilization)
	}
	if sample.Bitrate != 0 {
		t.Errorf("expected zero bitrate for unlocked reading, got %f", sample.Bitrate)
	}
}

func TestEstimate_KnownScenario(t *testing.T) {
	// 64-QAM, locked, 10,000 packets over 1 second.
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	r := Reading{Locked: true, Packets: 10_000, Timestamp: time.Now()}
	sample, err := e.Estimate(r, testChannel(QAM64), time.Second)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if sample.Bitrate != 15_040_000 {
		t.Errorf("expected 15040000 bps, got %f", sample.Bitrate)
	}
	if sample.Utilization == nil {
		t.Fatal("expected utilization to be available")
	}
	if got, want := *sample.Utilization, 15_040_000.0/34_000_000.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected utilization %f, got %f", want, got)
	}
	if sample.Anomalous {
		t.Error("sample should not be anomalous")
	}
}

func TestEstimate_ZeroPacketsIsMeasuredIdle(t *testing.T) {
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	r := Reading{Locked: true, Packets: 0, Timestamp: time.Now()}
	sample, err := e.Estimate(r, testChannel(QAM256), time.Second)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if sample.Utilization == nil {
		t.Fatal("zero traffic with lock must be a measured 0.0, not unavailable")
	}
	if *sample.Utilization != 0 {
		t.Errorf("expected exactly 0.0, got %f", *sample.Utilization)
	}
}

func TestEstimate_ModulationChangesDenominatorOnly(t *testing.T) {
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	r := Reading{Locked: true, Packets: 10_000, Timestamp: time.Now()}

	s64, err := e.Estimate(r, testChannel(QAM64), time.Second)
	if err != nil {
		t.Fatalf("Estimate(qam64): %v", err)
	}
	s256, err := e.Estimate(r, testChannel(QAM256), time.Second)
	if err != nil {
		t.Fatalf("Estimate(qam256): %v", err)
	}

	if s64.Bitrate != s256.Bitrate {
		t.Errorf("bitrate must not depend on modulation: %f != %f", s64.Bitrate, s256.Bitrate)
	}
	if *s64.Utilization == *s256.Utilization {
		t.Error("utilization must depend on modulation capacity")
	}
}

func TestEstimate_ClampsAndFlagsAnomaly(t *testing.T) {
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	// Far more packets than a 64-QAM channel can carry in one second.
	r := Reading{Locked: true, Packets: 100_000, Timestamp: time.Now()}
	sample, err := e.Estimate(r, testChannel(QAM64), time.Second)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if sample.Utilization == nil {
		t.Fatal("expected utilization to be available")
	}
	if *sample.Utilization != 1 {
		t.Errorf("expected utilization clamped to 1.0, got %f", *sample.Utilization)
	}
	if !sample.Anomalous {
		t.Error("expected sample to be flagged anomalous")
	}
}

func TestEstimate_ElapsedMustBePositive(t *testing.T) {
	e, err := NewEstimator(nil)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	r := Reading{Locked: true, Packets: 100, Timestamp: time.Now()}
	if _, err = e.Estimate(r, testChannel(QAM256), 0); err == nil {
		t.Error("expected error for zero elapsed time")
	}
	if _, err = e.Estimate(r, testChannel(QAM256), -time.Second); err == nil {
		t.Error("expected error for negative elapsed time")
	}
}

func TestNewEstimator_ValidatesTable(t *testing.T) {
	if _, err := NewEstimator(CapacityTable{QAM64: 34e6}); err == nil {
		t.Error("expected error for table missing qam256")
	}
	if _, err := NewEstimator(CapacityTable{QAM64: 34e6, QAM256: -1}); err == nil {
		t.Error("expected error for non-positive capacity")
	}
}
