package core

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// GetSeed receives a seed value for random number generation from the DYNBENCH_SEED environment variable.
func GetSeed() int64 {
	seedStr := os.Getenv("DYNBENCH_SEED")
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Debug().Msgf("Using seed from DYNBENCH_SEED value: %d", seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse DYNBENCH_SEED value: %s", seedStr)
	}

	seed := time.Now().UnixNano()
	log.Debug().Msgf("Using current time as seed: %d", seed)
	return seed
}

// Span clamps the half-open range [start, start+count) to a set of n rows.
func Span(n, start, count int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + count
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}
