package coverage

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/daviddao/mimic/pkg/model"
)

func rg(min, max model.Timestamp) model.Range {
	return model.Range{Min: min, Max: max}
}

func trackerWith(t *testing.T, ranges ...model.Range) *Tracker {
	t.Helper()
	tr := New()
	for _, r := range ranges {
		if err := tr.MergeRange(r.Min, r.Max); err != nil {
			t.Fatalf("MergeRange(%d, %d): %v", r.Min, r.Max, err)
		}
	}
	return tr
}

func TestMergeRange_Examples(t *testing.T) {
	tests := []struct {
		name  string
		start []model.Range
		add   model.Range
		want  []model.Range
	}{
		{"into empty", nil, rg(10, 20), []model.Range{rg(10, 20)}},
		{"overlap", []model.Range{rg(10, 20)}, rg(15, 25), []model.Range{rg(10, 25)}},
		{"adjacent", []model.Range{rg(10, 20)}, rg(21, 30), []model.Range{rg(10, 30)}},
		{"adjacent below", []model.Range{rg(10, 20)}, rg(0, 9), []model.Range{rg(0, 20)}},
		{"gap preserved", []model.Range{rg(10, 20)}, rg(25, 30), []model.Range{rg(10, 20), rg(25, 30)}},
		{"contained", []model.Range{rg(10, 20)}, rg(12, 13), []model.Range{rg(10, 20)}},
		{"swallows", []model.Range{rg(10, 20)}, rg(0, 100), []model.Range{rg(0, 100)}},
		{"bridges gap", []model.Range{rg(10, 20), rg(30, 40)}, rg(21, 29), []model.Range{rg(10, 40)}},
		{"single point", []model.Range{rg(10, 20)}, rg(22, 22), []model.Range{rg(10, 20), rg(22, 22)}},
		{"before all", []model.Range{rg(10, 20), rg(30, 40)}, rg(1, 5), []model.Range{rg(1, 5), rg(10, 20), rg(30, 40)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := trackerWith(t, tt.start...)
			if err := tr.MergeRange(tt.add.Min, tt.add.Max); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(tr.Ranges, tt.want) {
				t.Fatalf("Ranges = %v, want %v", tr.Ranges, tt.want)
			}
		})
	}
}

func TestMergeRange_Invalid(t *testing.T) {
	tr := trackerWith(t, rg(1, 2))
	err := tr.MergeRange(10, 5)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("MergeRange(10, 5): got %v, want ErrInvalidRange", err)
	}
	if !reflect.DeepEqual(tr.Ranges, []model.Range{rg(1, 2)}) {
		t.Fatalf("invalid merge modified ranges: %v", tr.Ranges)
	}
}

func TestMergeRange_MaxTimestamp(t *testing.T) {
	tr := trackerWith(t, rg(10, math.MaxInt64), rg(0, 5))
	want := []model.Range{rg(0, 5), rg(10, math.MaxInt64)}
	if !reflect.DeepEqual(tr.Ranges, want) {
		t.Fatalf("Ranges = %v, want %v", tr.Ranges, want)
	}
}

func TestMergeRange_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(12)
		ranges := make([]model.Range, n)
		for i := range ranges {
			min := model.Timestamp(rng.IntN(200))
			ranges[i] = rg(min, min+model.Timestamp(rng.IntN(15)))
		}
		a := trackerWith(t, ranges...)
		shuffled := append([]model.Range(nil), ranges...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		b := trackerWith(t, shuffled...)
		if !reflect.DeepEqual(a.Ranges, b.Ranges) {
			t.Fatalf("trial %d: order changed result\n  %v\n  %v", trial, a.Ranges, b.Ranges)
		}
		if err := a.Validate(); err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		// Every merged timestamp is covered.
		for _, r := range ranges {
			for ts := r.Min; ts <= r.Max; ts++ {
				if !a.IsCovered(ts) {
					t.Fatalf("trial %d: %d not covered after merging %v", trial, ts, r)
				}
			}
		}
	}
}

func TestIsCovered(t *testing.T) {
	tr := trackerWith(t, rg(10, 20), rg(25, 30))
	tests := []struct {
		ts   model.Timestamp
		want bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{20, true},
		{21, false},
		{24, false},
		{25, true},
		{30, true},
		{31, false},
	}
	for _, tt := range tests {
		if got := tr.IsCovered(tt.ts); got != tt.want {
			t.Errorf("IsCovered(%d) = %v, want %v", tt.ts, got, tt.want)
		}
	}
	if New().IsCovered(0) {
		t.Fatal("empty tracker should cover nothing")
	}
}

func TestRecordSourceStart_SetOnce(t *testing.T) {
	tr := New()
	tr.RecordSourceStart(5)
	tr.RecordSourceStart(1)
	if tr.FirstMessage == nil || *tr.FirstMessage != 5 {
		t.Fatalf("FirstMessage = %v, want 5", tr.FirstMessage)
	}
}

func TestRecordLastUpdate_Overwrites(t *testing.T) {
	tr := New()
	tr.RecordLastUpdate(5)
	tr.RecordLastUpdate(9)
	if tr.LastUpdate == nil || *tr.LastUpdate != 9 {
		t.Fatalf("LastUpdate = %v, want 9", tr.LastUpdate)
	}
}

func TestCoveredToStart(t *testing.T) {
	tr := trackerWith(t, rg(0, 20), rg(30, 40))
	if tr.CoveredToStart(10) {
		t.Fatal("without a recorded source start nothing reaches it")
	}
	tr.RecordSourceStart(0)
	if !tr.CoveredToStart(10) {
		t.Fatal("10 is in the range that starts at the first message")
	}
	if tr.CoveredToStart(35) {
		t.Fatal("35 is separated from the first message by a gap")
	}
	if tr.CoveredToStart(25) {
		t.Fatal("25 is not covered")
	}
}

func TestGaps(t *testing.T) {
	tr := trackerWith(t, rg(10, 20), rg(25, 30), rg(40, 50))
	tr.RecordSourceStart(0)
	want := []model.Range{rg(0, 9), rg(21, 24), rg(31, 39)}
	if got := tr.Gaps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Gaps() = %v, want %v", got, want)
	}
	if tr.Complete() {
		t.Fatal("tracker with gaps is not complete")
	}
	if err := tr.MergeRange(0, 50); err != nil {
		t.Fatal(err)
	}
	if len(tr.Gaps()) != 0 || !tr.Complete() {
		t.Fatalf("after full merge: gaps=%v complete=%v", tr.Gaps(), tr.Complete())
	}
}

func TestClone_IsDeep(t *testing.T) {
	tr := trackerWith(t, rg(1, 2))
	tr.RecordSourceStart(1)
	tr.RecordLastUpdate(2)
	c := tr.Clone()
	if err := c.MergeRange(10, 11); err != nil {
		t.Fatal(err)
	}
	c.RecordLastUpdate(11)
	*c.FirstMessage = 0
	if len(tr.Ranges) != 1 || *tr.LastUpdate != 2 || *tr.FirstMessage != 1 {
		t.Fatalf("clone mutation leaked into original: %+v", tr)
	}
}

func TestValidate(t *testing.T) {
	bad := []*Tracker{
		{Ranges: []model.Range{rg(5, 1)}},
		{Ranges: []model.Range{rg(1, 5), rg(6, 9)}},
		{Ranges: []model.Range{rg(10, 20), rg(1, 5)}},
	}
	for i, tr := range bad {
		if err := tr.Validate(); err == nil {
			t.Errorf("tracker %d: expected validation error", i)
		}
	}
	if err := trackerWith(t, rg(1, 5), rg(7, 9)).Validate(); err != nil {
		t.Fatalf("valid tracker: %v", err)
	}
}
