package logger

import (
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets through the first num of every den events. A zero ratio
// lets everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the window.
func (s *ratioSampler) Set(num, den int) {
	switch {
	case num <= 0 || den <= 0 || uint64(den) > math.MaxUint32:
		s.ratio.Store(0)
	default:
		num = min(num, den)
		s.ratio.Store(uint64(num)<<32 | uint64(den))
	}
	s.seen.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&math.MaxUint32
	return (s.seen.Add(1)-1)%den < num
}

// parseRatio reads "n/d", or "d" meaning 1/d. Anything else yields 0, 0.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if n, d, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(n))
		den, err2 := strconv.Atoi(strings.TrimSpace(d))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, 0
	}
	return 1, v
}
