package render

import (
	"sync"
	"time"
)

const (
	estimatorWindow  = 8
	fallbackDuration = 20 * time.Second
)

// estimator keeps a rolling average of call durations. Service-reported
// statistics take precedence when the /stats endpoint answers; otherwise the
// last few locally observed durations drive the average.
type estimator struct {
	mu sync.Mutex

	samples [estimatorWindow]time.Duration
	next    int
	count   int

	serviceAvg time.Duration
	queueDepth int
}

func newEstimator() *estimator {
	return &estimator{}
}

func (e *estimator) observe(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples[e.next] = d
	e.next = (e.next + 1) % estimatorWindow
	if e.count < estimatorWindow {
		e.count++
	}
}

func (e *estimator) setServiceStats(avg time.Duration, queueDepth int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if avg > 0 {
		e.serviceAvg = avg
	}
	if queueDepth >= 0 {
		e.queueDepth = queueDepth
	}
}

func (e *estimator) average() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.serviceAvg > 0 {
		return e.serviceAvg
	}
	if e.count == 0 {
		return fallbackDuration
	}
	var total time.Duration
	for i := 0; i < e.count; i++ {
		total += e.samples[i]
	}
	return total / time.Duration(e.count)
}

// remaining projects the time left: (pending items + outstanding service
// queue) x rolling average.
func (e *estimator) remaining(pending int) time.Duration {
	if pending < 0 {
		pending = 0
	}
	avg := e.average()
	e.mu.Lock()
	depth := e.queueDepth
	e.mu.Unlock()
	return time.Duration(pending+depth) * avg
}
