package model

import (
	"errors"
	"math"
	"testing"
)

func TestKeyValidate(t *testing.T) {
	cases := []struct {
		key   Key
		valid bool
	}{
		{NewKey("a1", "u1"), true},
		{NewKey(" ", "u1"), false},
		{NewKey("a1", ""), false},
		{Key{}, false},
	}
	for _, tc := range cases {
		err := tc.key.Validate()
		if tc.valid && err != nil {
			t.Fatalf("expected %v valid, got %v", tc.key, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %v, got %v", tc.key, err)
		}
	}
}

func TestKeyStringKeepsPairsDistinct(t *testing.T) {
	a := NewKey("a:b", "c")
	b := NewKey("a", "b:c")
	if a.String() == b.String() {
		t.Fatalf("expected distinct strings, both were %q", a.String())
	}
	if got := NewKey("a1", "u1").String(); got != "a1:u1" {
		t.Fatalf("unexpected plain key string %q", got)
	}
}

func TestFormatExchange(t *testing.T) {
	got := FormatExchange("hi", "Ava", "hello there")
	if got != "Human: hi\nAva: hello there" {
		t.Fatalf("unexpected exchange text %q", got)
	}
	if p := ExchangePrefix("hi", "Ava"); p != "Human: hi\nAva:" {
		t.Fatalf("unexpected prefix %q", p)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(s-1) > 1e-9 {
		t.Fatalf("expected 1, got %f", s)
	}
	if s := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(s) > 1e-9 {
		t.Fatalf("expected 0, got %f", s)
	}
	if s := CosineSimilarity(nil, []float32{1}); s != 0 {
		t.Fatalf("expected 0 for empty input, got %f", s)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected normalized vector %v", v)
	}
}
