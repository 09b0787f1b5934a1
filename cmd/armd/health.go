// health.go - Health checks for the resource machine daemon
package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency"`
}

type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     time.Duration     `json:"uptime"`
	Version    string            `json:"version"`
	Components []ComponentHealth `json:"components"`
}

// HealthChecker runs the registered component checks on demand.
type HealthChecker struct {
	mu       sync.RWMutex
	version  string
	started  time.Time
	checkers map[string]func(context.Context) error
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]func(context.Context) error),
	}
}

func (hc *HealthChecker) Register(name string, check func(context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = check
}

// Check runs every check. The system is unhealthy if any component is.
func (hc *HealthChecker) Check(ctx context.Context) *SystemHealth {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checkers))
	for name := range hc.checkers {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	h := &SystemHealth{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.started),
		Version:   hc.version,
	}
	for _, name := range names {
		hc.mu.RLock()
		check := hc.checkers[name]
		hc.mu.RUnlock()

		start := time.Now()
		c := ComponentHealth{Name: name, Status: Healthy, Message: "OK"}
		if err := check(ctx); err != nil {
			c.Status = Unhealthy
			c.Message = err.Error()
			h.Status = Unhealthy
		}
		c.Latency = time.Since(start)
		h.Components = append(h.Components, c)
	}
	return h
}
