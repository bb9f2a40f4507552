package network

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/LICODX/rnr-network/pkg/utils"
)

// Scheduler advances cycles on behalf of the admin once they expire.
type Scheduler struct {
	net      *Network
	admin    common.Address
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(n *Network, admin common.Address, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		net:      n,
		admin:    admin,
		interval: interval,
		logger:   n.logger.Named("scheduler"),
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.net.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("auto-advance started", zap.Stringer("admin", s.admin), zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-advance stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(); err != nil {
				s.logger.Warn("auto-advance failed", zap.Error(err))
			}
		}
	}
}

// Tick advances the cycle if it has expired. A paused network or a cycle
// that is still running is not an error.
func (s *Scheduler) Tick() (bool, error) {
	end, err := s.net.CycleEndTime()
	if err != nil {
		return false, err
	}
	if s.net.now() < end {
		return false, nil
	}
	admin, err := s.net.Admin(s.admin)
	if err != nil {
		return false, err
	}
	if _, err := admin.AdvanceCycle(); err != nil {
		if errors.Is(err, utils.ErrCycleStillActive) || errors.Is(err, utils.ErrContractPaused) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
