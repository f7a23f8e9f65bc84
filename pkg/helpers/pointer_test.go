package helpers

import (
	"testing"
)

func TestPtr(t *testing.T) {
	v := 0.7
	p := Ptr(v)
	if p == nil || *p != 0.7 {
		t.Fatalf("Ptr returned %v", p)
	}
	v = 1.0
	if *p != 0.7 {
		t.Errorf("Ptr must not alias its argument, got %f", *p)
	}

	s := Ptr("model")
	if *s != "model" {
		t.Errorf("Ptr returned %q", *s)
	}
}

func TestDeref(t *testing.T) {
	if got := Deref[float64](nil, 0.5); got != 0.5 {
		t.Errorf("Deref(nil) = %f, expected default", got)
	}
	if got := Deref(Ptr(0.2), 0.5); got != 0.2 {
		t.Errorf("Deref = %f, expected 0.2", got)
	}
}
