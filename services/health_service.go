package services

import (
	"context"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/types"
)

// HealthCheckFunc probes one dependency. A nil error means the dependency is
// reachable.
type HealthCheckFunc func(ctx context.Context) error

// HealthService aggregates dependency probes into a single health report.
type HealthService struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// NewHealthService creates a HealthService. checks maps a component name to
// its probe and may be empty.
func NewHealthService(version string, checks map[string]HealthCheckFunc) *HealthService {
	return &HealthService{
		version:   version,
		startTime: time.Now(),
		checks:    checks,
	}
}

// CheckHealth probes every registered component. The service is degraded
// when any component is down, and down only when all of them are.
func (s *HealthService) CheckHealth(ctx context.Context) types.HealthResponse {
	resp := types.HealthResponse{
		Status:  types.HealthStatusUp,
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if len(s.checks) == 0 {
		return resp
	}

	resp.Components = make(map[string]types.ComponentHealth, len(s.checks))
	down := 0
	for name, check := range s.checks {
		component := types.ComponentHealth{Status: types.HealthStatusUp}
		if err := check(ctx); err != nil {
			component.Status = types.HealthStatusDown
			component.Detail = err.Error()
			down++
		}
		resp.Components[name] = component
	}

	switch {
	case down == len(s.checks):
		resp.Status = types.HealthStatusDown
	case down > 0:
		resp.Status = types.HealthStatusDegraded
	}
	return resp
}
