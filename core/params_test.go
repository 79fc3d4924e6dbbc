package core

import "testing"

func TestParamsAccessors(t *testing.T) {
	p := Params{
		"M":      16,
		"ef":     int64(40),
		"skips":  0.05,
		"nprobe": "8",
		"rate":   "x",
	}

	if got := p.Int("M", 0); got != 16 {
		t.Errorf("Int(M) = %d; want 16", got)
	}
	if got := p.Int("ef", 0); got != 40 {
		t.Errorf("Int(ef) = %d; want 40", got)
	}
	if got := p.Int("nprobe", 0); got != 8 {
		t.Errorf("Int(nprobe) = %d; want 8", got)
	}
	if got := p.Int("missing", 3); got != 3 {
		t.Errorf("Int(missing) = %d; want default 3", got)
	}
	if got := p.Float("skips", 0); got != 0.05 {
		t.Errorf("Float(skips) = %v; want 0.05", got)
	}
	if got := p.Float("M", 0); got != 16 {
		t.Errorf("Float(M) = %v; want 16", got)
	}
	if got := p.Float("rate", 1.5); got != 1.5 {
		t.Errorf("Float(rate) = %v; want default 1.5", got)
	}
}

func TestParamsString(t *testing.T) {
	p := Params{"nprobe": 8, "M": 16}
	if got := p.String(); got != "M=16, nprobe=8" {
		t.Errorf("String() = %q; want %q", got, "M=16, nprobe=8")
	}
	if got := (Params{}).String(); got != "" {
		t.Errorf("String() of empty params = %q; want empty", got)
	}
}

func TestParamsStr(t *testing.T) {
	p := Params{"metric": "cosine", "M": 8}
	if got := p.Str("metric", "euclidean"); got != "cosine" {
		t.Errorf("Str(metric) = %q; want cosine", got)
	}
	if got := p.Str("M", ""); got != "8" {
		t.Errorf("Str(M) = %q; want 8", got)
	}
	if got := p.Str("missing", "x"); got != "x" {
		t.Errorf("Str(missing) = %q; want x", got)
	}
}
