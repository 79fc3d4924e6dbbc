package core

import (
	"testing"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

func TestKernelsMatchRuntimeDetection(t *testing.T) {
	k := Kernels()
	if k.HasAVX2 != cpu.X86.HasAVX2 {
		t.Errorf("HasAVX2 = %v; want %v", k.HasAVX2, cpu.X86.HasAVX2)
	}
	if k.Accelerated != vek32.Info().Acceleration {
		t.Errorf("Accelerated = %v; want %v", k.Accelerated, vek32.Info().Acceleration)
	}
}

func TestLogKernelsDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Did not expect panic from LogKernels: %v", r)
		}
	}()
	LogKernels()
}
