package elbow

import "testing"

func TestLocateConvexCurve(t *testing.T) {
	// Steep drop from k=2 to k=3, then diminishing returns: knee at 3.
	xs := []int{2, 3, 4, 5}
	ys := []float64{10, 4, 2, 1.5}
	got, ok, err := Locate(xs, ys)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !ok {
		t.Fatal("no elbow found on convex curve")
	}
	if got != 3 {
		t.Errorf("elbow at %d, want 3", got)
	}
}

func TestLocateLinearCurveHasNoElbow(t *testing.T) {
	xs := []int{2, 3, 4, 5}
	ys := []float64{4, 3, 2, 1}
	_, ok, err := Locate(xs, ys)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if ok {
		t.Error("found an elbow on a straight line")
	}
}

func TestLocateTooShort(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		xs := make([]int, n)
		ys := make([]float64, n)
		for i := range xs {
			xs[i] = i + 2
			ys[i] = float64(10 - i)
		}
		if _, ok, err := Locate(xs, ys); err != nil || ok {
			t.Errorf("n=%d: ok=%v err=%v, want no elbow and no error", n, ok, err)
		}
	}
}

func TestLocateFlatCurve(t *testing.T) {
	xs := []int{2, 3, 4}
	ys := []float64{5, 5, 5}
	if _, ok, _ := Locate(xs, ys); ok {
		t.Error("found an elbow on a flat curve")
	}
}

func TestLocateLengthMismatch(t *testing.T) {
	if _, _, err := Locate([]int{1, 2, 3}, []float64{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestLocateSharpKnee(t *testing.T) {
	// Error collapses at k=4 and flattens after.
	xs := []int{2, 3, 4, 5, 6, 7}
	ys := []float64{20, 15, 3, 2.5, 2.2, 2}
	got, ok, err := Locate(xs, ys)
	if err != nil || !ok {
		t.Fatalf("Locate: ok=%v err=%v", ok, err)
	}
	if got != 4 {
		t.Errorf("elbow at %d, want 4", got)
	}
}
