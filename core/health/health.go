// Package health reports whether the gateway's backends are reachable.
//
// The identity store needs its record backend (SQL or Redis) to persist and
// restore identities. A Manager runs every registered Checker concurrently
// and folds the results into a single Report served on /ready.
package health

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one backend probe.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Ready reports whether the gateway can serve requests.
func (r *Report) Ready() bool {
	return r.Status != StatusUnhealthy
}

type Checker interface {
	Name() string
	Check(ctx context.Context) *Check
}

// PingChecker probes a backend through a ping function. A failed ping is
// unhealthy unless the checker is optional, in which case it is degraded.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Optional marks the backend as not required for serving.
func (c *PingChecker) Optional() *PingChecker {
	c.optional = true
	return c
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) *Check {
	check := &Check{Name: c.name, Status: StatusHealthy, Message: "connected"}
	if err := c.ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		if c.optional {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
	}
	return check
}

type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
	now      func() time.Time
}

type ManagerOption func(*Manager)

func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

func NewManager(version string, opts ...ManagerOption) *Manager {
	m := &Manager{
		version: version,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs all checkers concurrently under the manager's timeout. Checks
// are reported in registration order.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	checks := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := m.now()
			check := c.Check(ctx)
			if check == nil {
				check = &Check{Name: c.Name(), Status: StatusUnhealthy}
			}
			check.LatencyMs = m.now().Sub(start).Milliseconds()
			check.Timestamp = m.now()
			checks[i] = *check
		}()
	}
	wg.Wait()

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: m.now(),
		Checks:    checks,
	}
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status != StatusUnhealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}
