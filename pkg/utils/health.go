package utils

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type HealthCheck func() (HealthStatus, string)

type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LastCheck time.Time    `json:"last_check"`
}

type HealthReport struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

type HealthMonitor struct {
	components    map[string]*ComponentHealth
	checks        map[string]HealthCheck
	mutex         sync.RWMutex
	startTime     time.Time
	checkInterval time.Duration
	logger        *zap.Logger
}

func NewHealthMonitor(checkInterval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		components:    make(map[string]*ComponentHealth),
		checks:        make(map[string]HealthCheck),
		startTime:     time.Now(),
		checkInterval: checkInterval,
		logger:        logger.Named("health"),
	}
}

func (hm *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	hm.components[name] = &ComponentHealth{Name: name, Status: StatusHealthy}
	hm.checks[name] = check
	hm.logger.Debug("component registered", zap.String("component", name))
}

// CheckHealth runs one check outside the monitor's lock.
func (hm *HealthMonitor) CheckHealth(name string) {
	hm.mutex.RLock()
	check, ok := hm.checks[name]
	hm.mutex.RUnlock()
	if !ok {
		return
	}
	status, message := check()

	hm.mutex.Lock()
	defer hm.mutex.Unlock()
	comp := hm.components[name]
	if comp.Status != status && status != StatusHealthy {
		hm.logger.Warn("component health changed",
			zap.String("component", name),
			zap.String("status", string(status)),
			zap.String("message", message))
	}
	comp.Status = status
	comp.Message = message
	comp.LastCheck = time.Now()
}

func (hm *HealthMonitor) CheckAllHealth() {
	hm.mutex.RLock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	hm.mutex.RUnlock()

	for _, name := range names {
		hm.CheckHealth(name)
	}
}

func (hm *HealthMonitor) GetHealth(name string) *ComponentHealth {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	if comp, ok := hm.components[name]; ok {
		c := *comp
		return &c
	}
	return nil
}

func (hm *HealthMonitor) GetOverallHealth() HealthStatus {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()
	return hm.overall()
}

func (hm *HealthMonitor) overall() HealthStatus {
	status := StatusHealthy
	for _, comp := range hm.components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Report returns the last check results sorted by component name.
func (hm *HealthMonitor) Report() HealthReport {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()

	rep := HealthReport{
		Status:     hm.overall(),
		Uptime:     time.Since(hm.startTime).Round(time.Second).String(),
		Components: make([]ComponentHealth, 0, len(hm.components)),
	}
	for _, comp := range hm.components {
		rep.Components = append(rep.Components, *comp)
	}
	sort.Slice(rep.Components, func(i, j int) bool {
		return rep.Components[i].Name < rep.Components[j].Name
	})
	return rep
}

// Run checks every component once, then on every interval until ctx ends.
func (hm *HealthMonitor) Run(ctx context.Context) {
	hm.CheckAllHealth()

	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	hm.logger.Info("health monitor started", zap.Duration("interval", hm.checkInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.CheckAllHealth()
		}
	}
}
