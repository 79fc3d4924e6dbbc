package core

import (
	"github.com/rs/zerolog/log"
	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

// KernelInfo describes how the distance kernels run on this machine.
type KernelInfo struct {
	Accelerated bool     // vek32 uses SIMD code paths
	HasAVX2     bool     // CPU reports AVX2
	Features    []string // CPU features detected by vek32
}

// Kernels reports whether the vector kernels are hardware accelerated.
// Unaccelerated kernels still work, they are only slower, so timings taken on
// such machines are not comparable with accelerated ones.
func Kernels() KernelInfo {
	info := vek32.Info()
	return KernelInfo{
		Accelerated: info.Acceleration,
		HasAVX2:     cpu.X86.HasAVX2,
		Features:    info.CPUFeatures,
	}
}

// LogKernels writes the kernel report to the global logger.
func LogKernels() {
	k := Kernels()
	if !k.Accelerated {
		log.Warn().Strs("features", k.Features).Msg("Vector kernels are not accelerated; timings are not comparable with SIMD machines")
		return
	}
	log.Info().Bool("avx2", k.HasAVX2).Strs("features", k.Features).Msg("Vector kernels accelerated")
}
