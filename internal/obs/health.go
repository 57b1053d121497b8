package obs

import (
	"context"
	"fmt"
)

// HealthStatus represents the health status of an index
type HealthStatus struct {
	Status string                  `json:"status"`
	Checks map[string]*CheckResult `json:"checks"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// IndexProbe is the view of an index the health checker inspects
type IndexProbe interface {
	Len() int
	Capacity() int
	RebuildRunning() bool
	CheckInvariants() error
}

// CapacityWarnRatio is the fill ratio above which the capacity check fails
const CapacityWarnRatio = 0.95

// HealthChecker performs health checks
type HealthChecker struct {
	index IndexProbe
}

// NewHealthChecker creates health checker
func NewHealthChecker(index IndexProbe) *HealthChecker {
	return &HealthChecker{index: index}
}

// Check performs health check.
// A broken graph makes the index unhealthy; a nearly full index is degraded.
func (hc *HealthChecker) Check(ctx context.Context) (*HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status := &HealthStatus{
		Status: "healthy",
		Checks: make(map[string]*CheckResult, 3),
	}

	if err := hc.index.CheckInvariants(); err != nil {
		status.Checks["graph"] = &CheckResult{Healthy: false, Message: err.Error()}
		status.Status = "unhealthy"
	} else {
		status.Checks["graph"] = &CheckResult{Healthy: true, Message: "graph invariants hold"}
	}

	n, capacity := hc.index.Len(), hc.index.Capacity()
	capResult := &CheckResult{
		Healthy: true,
		Message: fmt.Sprintf("%d of %d slots used", n, capacity),
	}
	if capacity > 0 && float64(n) >= CapacityWarnRatio*float64(capacity) {
		capResult.Healthy = false
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	status.Checks["capacity"] = capResult

	rebuild := &CheckResult{Healthy: true, Message: "idle"}
	if hc.index.RebuildRunning() {
		rebuild.Message = "rebuild in progress"
	}
	status.Checks["rebuild"] = rebuild

	return status, nil
}
