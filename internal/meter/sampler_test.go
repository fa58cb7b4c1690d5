package meter

import (
	"testing"
	"time"

	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/tuner"
)

func TestSamplerFirstTick(t *testing.T) {
	s := newSampler()
	ch := testChannel(546, docsis.QAM256)

	reading, elapsed, first := s.sample(ch, tuner.Status{
		Locked:   true,
		SNR:      36.2,
		Packets:  1000,
		Observed: 2 * time.Second,
	})
	if !first {
		t.Error("expected first=true on the first tick")
	}
	if reading.Packets != 0 {
		t.Errorf("first tick delta = %d, want 0", reading.Packets)
	}
	if elapsed != 0 {
		t.Errorf("first tick elapsed = %s, want 0", elapsed)
	}
	if !reading.Locked || reading.SNR != 36.2 {
		t.Errorf("lock/SNR not carried through: %+v", reading)
	}
}

func TestSamplerDelta(t *testing.T) {
	s := newSampler()
	ch := testChannel(546, docsis.QAM256)

	s.sample(ch, tuner.Status{Packets: 1000, Observed: 2 * time.Second})
	reading, elapsed, first := s.sample(ch, tuner.Status{Packets: 11000, Observed: 3 * time.Second})

	if first {
		t.Error("second tick reported as first")
	}
	if reading.Packets != 10000 {
		t.Errorf("delta = %d, want 10000", reading.Packets)
	}
	if elapsed != time.Second {
		t.Errorf("elapsed = %s, want 1s", elapsed)
	}
}

func TestSamplerCounterRegression(t *testing.T) {
	s := newSampler()
	ch := testChannel(546, docsis.QAM256)

	s.sample(ch, tuner.Status{Packets: 11000, Observed: 3 * time.Second})

	// A re-created handle restarts its counters from zero.
	reading, _, first := s.sample(ch, tuner.Status{Packets: 500, Observed: 2 * time.Second})
	if !first {
		t.Error("expected first=true after a counter regression")
	}
	if reading.Packets != 0 {
		t.Errorf("delta after regression = %d, want 0", reading.Packets)
	}

	// The regressed counters become the new baseline.
	reading, elapsed, first := s.sample(ch, tuner.Status{Packets: 600, Observed: 4 * time.Second})
	if first {
		t.Error("tick after re-established baseline reported as first")
	}
	if reading.Packets != 100 {
		t.Errorf("delta = %d, want 100", reading.Packets)
	}
	if elapsed != 2*time.Second {
		t.Errorf("elapsed = %s, want 2s", elapsed)
	}
}

func TestSamplerChannelsAreIndependent(t *testing.T) {
	s := newSampler()
	a := testChannel(546, docsis.QAM256)
	b := testChannel(554, docsis.QAM64)

	s.sample(a, tuner.Status{Packets: 1000, Observed: 2 * time.Second})

	if _, _, first := s.sample(b, tuner.Status{Packets: 500, Observed: 2 * time.Second}); !first {
		t.Error("expected an independent baseline per channel")
	}
}

func TestSamplerDrop(t *testing.T) {
	s := newSampler()
	ch := testChannel(546, docsis.QAM256)

	s.sample(ch, tuner.Status{Packets: 1000, Observed: 2 * time.Second})
	s.drop(ch)

	if _, _, first := s.sample(ch, tuner.Status{Packets: 2000, Observed: 4 * time.Second}); !first {
		t.Error("expected first=true after the baseline was dropped")
	}
}
