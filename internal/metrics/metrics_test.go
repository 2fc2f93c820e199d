package metrics

import "testing"

func TestSnapshotDerivedFields(t *testing.T) {
	c := New()
	c.IncTotalDownloads()
	c.IncTotalDownloads()
	c.IncTotalDownloads()
	c.IncSuccessfulDownloads()
	c.IncSuccessfulDownloads()
	c.IncFailedDownloads()
	c.AddBytes(1000)
	c.AddBytes(2000)

	s := c.Snapshot()
	if s.TotalDownloads != 3 || s.SuccessfulDownloads != 2 || s.FailedDownloads != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.SuccessRate != 2.0/3.0 {
		t.Errorf("unexpected success rate: %f", s.SuccessRate)
	}
	if s.AverageSize != 1500 {
		t.Errorf("unexpected average size: %f", s.AverageSize)
	}
}

func TestSnapshotZeroValueHasNoDivisionByZero(t *testing.T) {
	c := New()
	s := c.Snapshot()
	if s.SuccessRate != 0 || s.AverageSize != 0 {
		t.Errorf("expected zero derived fields on an empty counter set, got %+v", s)
	}
}
