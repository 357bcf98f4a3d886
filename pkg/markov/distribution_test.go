package markov

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestObserve_CountsAndTotal(t *testing.T) {
	d := NewDistribution[string]()
	for _, k := range []string{"a", "b", "a", "c", "a"} {
		d.Observe(k)
	}
	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	if d.Total() != 5 {
		t.Fatalf("Total() = %d, want 5", d.Total())
	}
	if got := d.Count("a"); got != 3 {
		t.Fatalf("Count(a) = %d, want 3", got)
	}
	if got := d.Count("missing"); got != 0 {
		t.Fatalf("Count(missing) = %d, want 0", got)
	}
}

func TestZeroValueDistributionObserves(t *testing.T) {
	var d Distribution[int]
	d.Observe(7)
	if d.Count(7) != 1 {
		t.Fatal("zero-value distribution should accept observations")
	}
}

func TestFinalize_Empty(t *testing.T) {
	d := NewDistribution[int]()
	if err := d.Finalize(); !errors.Is(err, ErrEmptyDistribution) {
		t.Fatalf("Finalize on empty: got %v, want ErrEmptyDistribution", err)
	}
}

func TestFinalize_CumulativeMonotoneEndsAtOne(t *testing.T) {
	d := NewDistribution[int]()
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10_000; i++ {
		d.Observe(rng.IntN(97))
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	entries := d.Entries()
	prev := 0.0
	for i, e := range entries {
		if e.Cumulative < prev {
			t.Fatalf("entry %d: cumulative %v < previous %v", i, e.Cumulative, prev)
		}
		prev = e.Cumulative
	}
	if last := entries[len(entries)-1].Cumulative; math.Abs(last-1) > 1e-9 {
		t.Fatalf("last cumulative = %v, want 1", last)
	}
}

func TestFinalize_SortsAscendingStableOnTies(t *testing.T) {
	d := NewDistribution[string]()
	for _, k := range []string{"x", "y", "y", "z", "w", "y"} {
		d.Observe(k)
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, e := range d.Entries() {
		keys = append(keys, e.Key)
	}
	want := []string{"x", "z", "w", "y"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
}

func TestFinalize_Deterministic(t *testing.T) {
	build := func() []Entry[string] {
		d := NewDistribution[string]()
		for _, k := range []string{"q", "r", "s", "q", "t", "r"} {
			d.Observe(k)
		}
		if err := d.Finalize(); err != nil {
			t.Fatal(err)
		}
		return d.Entries()
	}
	a, b := build(), build()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFinalize_RefinalizeKeepsPreviousTieOrder(t *testing.T) {
	d := NewDistribution[string]()
	for _, k := range []string{"a", "a", "b"} {
		d.Observe(k)
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	d.Observe("b") // a and b now tie at 2
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	entries := d.Entries()
	if entries[0].Key != "b" || entries[1].Key != "a" {
		t.Fatalf("order = [%s %s], want [b a] (the order before re-finalizing)", entries[0].Key, entries[1].Key)
	}
	if entries[0].Cumulative != 0.5 || entries[1].Cumulative != 1 {
		t.Fatalf("cumulative = %v, %v", entries[0].Cumulative, entries[1].Cumulative)
	}
}

func TestSample_NotFinalized(t *testing.T) {
	d := NewDistribution[string]()
	d.Observe("a")
	if _, err := d.Sample(0.5); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("Sample before Finalize: got %v, want ErrNotFinalized", err)
	}
}

func TestSample_Empty(t *testing.T) {
	d := NewDistribution[string]()
	if _, err := d.Sample(0.5); !errors.Is(err, ErrEmptyDistribution) {
		t.Fatalf("Sample on empty: got %v, want ErrEmptyDistribution", err)
	}
}

func TestSample_Boundaries(t *testing.T) {
	d := NewDistribution[string]()
	d.Observe("rare")
	for i := 0; i < 3; i++ {
		d.Observe("common")
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	// rare covers [0, 0.25], common (0.25, 1].
	tests := []struct {
		r    float64
		want string
	}{
		{0, "rare"},
		{0.25, "rare"},
		{0.2500001, "common"},
		{0.999999, "common"},
		{1.5, "common"}, // above the last cumulative: clamp
	}
	for _, tt := range tests {
		got, err := d.Sample(tt.r)
		if err != nil {
			t.Fatalf("Sample(%v): %v", tt.r, err)
		}
		if got != tt.want {
			t.Errorf("Sample(%v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestSample_FrequenciesMatchCounts(t *testing.T) {
	d := NewDistribution[string]()
	counts := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
	for k, n := range counts {
		for i := 0; i < n; i++ {
			d.Observe(k)
		}
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}

	const trials = 200_000
	rng := rand.New(rand.NewPCG(42, 7))
	seen := make(map[string]int)
	for i := 0; i < trials; i++ {
		k, err := d.Sample(rng.Float64())
		if err != nil {
			t.Fatal(err)
		}
		seen[k]++
	}
	for k, n := range counts {
		want := float64(n) / 10
		got := float64(seen[k]) / trials
		if math.Abs(got-want) > 0.01 {
			t.Errorf("frequency of %q = %.4f, want %.4f ± 0.01", k, got, want)
		}
	}
}

func TestObserveAfterFinalize_ReopensAndAccumulates(t *testing.T) {
	d := NewDistribution[string]()
	d.Observe("a")
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	d.Observe("b")
	d.Observe("b")
	d.Observe("b")
	if d.Finalized() {
		t.Fatal("Observe should re-open the distribution")
	}
	if _, err := d.Sample(0.1); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("Sample after re-open: got %v, want ErrNotFinalized", err)
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	if d.Total() != 4 || d.Count("a") != 1 || d.Count("b") != 3 {
		t.Fatalf("counts after second batch: total=%d a=%d b=%d", d.Total(), d.Count("a"), d.Count("b"))
	}
	// Union of both batches: a -> [0, 0.25], b -> (0.25, 1].
	if k, _ := d.Sample(0.2); k != "a" {
		t.Fatalf("Sample(0.2) = %q, want a", k)
	}
	if k, _ := d.Sample(0.3); k != "b" {
		t.Fatalf("Sample(0.3) = %q, want b", k)
	}
}

func TestRestoreDistribution_RoundTrip(t *testing.T) {
	d := NewDistribution[int]()
	for _, k := range []int{3, 1, 3, 2, 3, 1} {
		d.Observe(k)
	}
	if err := d.Finalize(); err != nil {
		t.Fatal(err)
	}
	r, err := RestoreDistribution(d.State())
	if err != nil {
		t.Fatalf("RestoreDistribution: %v", err)
	}
	if r.Total() != d.Total() || !r.Finalized() {
		t.Fatalf("restored total=%d finalized=%v", r.Total(), r.Finalized())
	}
	orig, got := d.Entries(), r.Entries()
	for i := range orig {
		if orig[i] != got[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], orig[i])
		}
	}
	for _, x := range []float64{0, 0.1, 0.34, 0.5, 0.99} {
		a, _ := d.Sample(x)
		b, _ := r.Sample(x)
		if a != b {
			t.Fatalf("Sample(%v): original %d, restored %d", x, a, b)
		}
	}
}

func TestRestoreDistribution_Invalid(t *testing.T) {
	tests := []struct {
		name string
		s    DistributionState[string]
	}{
		{"zero count", DistributionState[string]{Entries: []Entry[string]{{Key: "a", Count: 0}}}},
		{"duplicate key", DistributionState[string]{Entries: []Entry[string]{{Key: "a", Count: 1}, {Key: "a", Count: 2}}}},
		{"finalized empty", DistributionState[string]{Finalized: true}},
		{"decreasing cumulative", DistributionState[string]{Finalized: true, Entries: []Entry[string]{
			{Key: "a", Count: 1, Cumulative: 0.6}, {Key: "b", Count: 1, Cumulative: 0.4}, {Key: "c", Count: 1, Cumulative: 1},
		}}},
		{"tail short of one", DistributionState[string]{Finalized: true, Entries: []Entry[string]{
			{Key: "a", Count: 1, Cumulative: 0.5}, {Key: "b", Count: 1, Cumulative: 0.9},
		}}},
		{"tail above one", DistributionState[string]{Finalized: true, Entries: []Entry[string]{
			{Key: "a", Count: 1, Cumulative: 1.5},
		}}},
		{"NaN cumulative", DistributionState[string]{Finalized: true, Entries: []Entry[string]{
			{Key: "a", Count: 1, Cumulative: math.NaN()},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RestoreDistribution(tt.s); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	// The same bad cumulatives are ignored while the distribution is open.
	open := DistributionState[string]{Entries: []Entry[string]{{Key: "a", Count: 1, Cumulative: 0.9}}}
	if _, err := RestoreDistribution(open); err != nil {
		t.Fatalf("open state: %v", err)
	}
}
