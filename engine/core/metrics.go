package core

import (
	"sync"

	"github.com/spaghettifunk/anima-rc/engine/containers"
)

const AVG_COUNT uint8 = 30

// Metrics accumulates cache counters and a rolling average of decode times
// over the last AVG_COUNT decodes.
type Metrics struct {
	mu sync.Mutex

	hits     uint64
	misses   uint64
	waits    uint64
	failures uint64

	decodeMStimes *containers.RingQueue[float64]
	decodeMSavg   float64
}

// MetricsSnapshot is a copy of the counters at one point in time.
type MetricsSnapshot struct {
	Hits            uint64
	Misses          uint64
	Waits           uint64
	DecodeFailures  uint64
	AverageDecodeMS float64
}

func NewMetrics() *Metrics {
	return &Metrics{decodeMStimes: containers.NewRingQueue[float64](int(AVG_COUNT))}
}

func (m *Metrics) Hit() {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *Metrics) Miss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

// Wait records a lookup that blocked on a decode already in flight.
func (m *Metrics) Wait() {
	m.mu.Lock()
	m.waits++
	m.mu.Unlock()
}

func (m *Metrics) Failure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// Decoded records how long a successful decode took, in seconds.
func (m *Metrics) Decoded(elapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decodeMStimes.Push(elapsed * 1000.0)

	sum := 0.0
	m.decodeMStimes.Each(func(ms float64) {
		sum += ms
	})
	m.decodeMSavg = sum / float64(m.decodeMStimes.Len())
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Hits:            m.hits,
		Misses:          m.misses,
		Waits:           m.waits,
		DecodeFailures:  m.failures,
		AverageDecodeMS: m.decodeMSavg,
	}
}
