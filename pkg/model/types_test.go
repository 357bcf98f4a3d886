package model

import (
	"testing"
	"time"
)

func TestTimestamp_LessEq_Reflexive(t *testing.T) {
	ts := Timestamp(5)
	if !ts.LessEq(ts) {
		t.Fatal("LessEq should be reflexive")
	}
}

func TestTimestamp_Less_NotReflexive(t *testing.T) {
	ts := Timestamp(5)
	if ts.Less(ts) {
		t.Fatal("Less should NOT be reflexive")
	}
}

func TestTimestamp_TotalOrder(t *testing.T) {
	cases := []struct {
		name      string
		a, b      Timestamp
		less, leq bool
	}{
		{"before", 1, 2, true, true},
		{"equal", 2, 2, false, true},
		{"after", 3, 2, false, false},
		{"negative", -10, 0, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Less(tc.b); got != tc.less {
				t.Fatalf("%d.Less(%d) = %v, want %v", tc.a, tc.b, got, tc.less)
			}
			if got := tc.a.LessEq(tc.b); got != tc.leq {
				t.Fatalf("%d.LessEq(%d) = %v, want %v", tc.a, tc.b, got, tc.leq)
			}
		})
	}
}

func TestTimestamp_TimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	ts := FromTime(now)
	if !ts.Time().Equal(now) {
		t.Fatalf("round trip: got %v, want %v", ts.Time(), now)
	}
	if got := ts.String(); got != "2024-03-01T12:30:00.123Z" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTimestamp_FromTimeTruncates(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 1_999_999, time.UTC)
	if got := FromTime(t1); got != FromTime(time.Date(2024, 1, 1, 0, 0, 0, 1_000_000, time.UTC)) {
		t.Fatalf("FromTime should truncate sub-millisecond precision, got %d", got)
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Min: 10, Max: 20}
	for _, ts := range []Timestamp{10, 15, 20} {
		if !r.Contains(ts) {
			t.Errorf("Contains(%d) = false, want true", ts)
		}
	}
	for _, ts := range []Timestamp{9, 21} {
		if r.Contains(ts) {
			t.Errorf("Contains(%d) = true, want false", ts)
		}
	}
}

func TestRun_Walked(t *testing.T) {
	r := Run{Observed: 3, Skipped: 2, Ignored: 1}
	if r.Walked() != 6 {
		t.Fatalf("Walked() = %d, want 6", r.Walked())
	}
}
