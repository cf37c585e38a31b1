package backoff

import "testing"

func TestSpinDoesNotPanic(t *testing.T) {
	var w Wait
	for i := 0; i < spinLimit+5; i++ {
		w.Spin(false)
	}
}

func TestSpinRelaxedDoesNotPanic(t *testing.T) {
	var w Wait
	for i := 0; i < relaxedSpinLimit+5; i++ {
		w.Spin(true)
	}
}

func TestReset(t *testing.T) {
	var w Wait
	w.Spin(false)
	w.Spin(false)
	w.Reset()
	if w.n != 0 {
		t.Fatalf("expected n reset to 0, got %d", w.n)
	}
}
