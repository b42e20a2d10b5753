package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyart/internal/services"
)

// The retry loop is an explicit state machine so attempt accounting lives in
// one place instead of nested callbacks: Attempting -> (Succeeded | Failed |
// Backoff -> Attempting).
type retryPhase int

const (
	phaseAttempting retryPhase = iota
	phaseBackoff
	phaseSucceeded
	phaseFailed
)

type failureClass int

const (
	classTransient failureClass = iota
	classPermanent
	classTimeout
)

// permanentError marks failures that will never succeed on retry regardless
// of HTTP status (malformed requests, service-reported prompt rejections).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

type retryMachine struct {
	phase       retryPhase
	attempt     int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	nextDelay   time.Duration

	// extendedDeadline flags that the next attempt runs with the longer
	// timeout; a deadline overrun is retried exactly once.
	extendedDeadline bool
	timeoutRetried   bool

	finalClass failureClass
	messages   []string
}

func newRetryMachine(maxAttempts int, baseDelay, maxDelay time.Duration) *retryMachine {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &retryMachine{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// begin starts the next attempt and returns its 1-based index.
func (m *retryMachine) begin() int {
	m.phase = phaseAttempting
	m.attempt++
	return m.attempt
}

// observe transitions the machine based on the attempt outcome.
func (m *retryMachine) observe(err error) {
	if err == nil {
		m.phase = phaseSucceeded
		return
	}
	m.messages = append(m.messages, fmt.Sprintf("attempt %d: %v", m.attempt, err))

	class := classify(err)
	m.finalClass = class

	switch class {
	case classPermanent:
		m.phase = phaseFailed
	case classTimeout:
		if m.timeoutRetried {
			m.phase = phaseFailed
			return
		}
		m.timeoutRetried = true
		m.extendedDeadline = true
		m.nextDelay = m.baseDelay
		m.phase = phaseBackoff
	default:
		if m.attempt >= m.maxAttempts {
			m.phase = phaseFailed
			return
		}
		m.nextDelay = m.backoffDelay()
		m.phase = phaseBackoff
	}
}

// backoffDelay doubles the base delay per completed attempt, capped.
func (m *retryMachine) backoffDelay() time.Duration {
	delay := m.baseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < m.attempt; i++ {
		if m.maxDelay > 0 && delay > m.maxDelay/2 {
			return m.maxDelay
		}
		delay *= 2
	}
	if m.maxDelay > 0 && delay > m.maxDelay {
		return m.maxDelay
	}
	return delay
}

// failure builds the aggregate error after the machine reaches phaseFailed.
func (m *retryMachine) failure(component, label string) error {
	marker := services.ErrTransient
	switch m.finalClass {
	case classPermanent:
		marker = services.ErrPermanent
	case classTimeout:
		marker = services.ErrTimeout
	}
	detail := fmt.Sprintf("failed after %d attempt(s): %s", m.attempt, strings.Join(m.messages, "; "))
	return services.Wrap(marker, component, "generate", labelDetail(label, detail), nil)
}

func labelDetail(label, detail string) string {
	if strings.TrimSpace(label) == "" {
		return detail
	}
	return label + ": " + detail
}

func classify(err error) failureClass {
	var perm *permanentError
	if errors.As(err, &perm) {
		return classPermanent
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return classTransient
		default:
			return classPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return classTimeout
	}

	return classTransient
}
