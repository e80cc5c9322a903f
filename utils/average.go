package utils

import "sync"

// RollingAverage is the mean of the most recent samples. It is safe for concurrent use.
type RollingAverage struct {
	mu    sync.Mutex
	data  []float64
	pos   int
	count int
}

// NewRollingAverage returns an average over the last numSamples samples.
func NewRollingAverage(numSamples int) *RollingAverage {
	if numSamples < 1 {
		numSamples = 1
	}
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples is the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Add records a sample, evicting the oldest once the window is full.
func (ra *RollingAverage) Add(x float64) {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
	if ra.count < len(ra.data) {
		ra.count++
	}
}

// Average returns the mean of the samples seen so far, 0 if there are none.
func (ra *RollingAverage) Average() float64 {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	if ra.count == 0 {
		return 0
	}
	sum := 0.
	for _, d := range ra.data[:ra.count] {
		sum += d
	}
	return sum / float64(ra.count)
}

// Reset forgets all samples.
func (ra *RollingAverage) Reset() {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	ra.pos = 0
	ra.count = 0
}
