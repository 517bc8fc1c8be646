package services

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/lendarr/lendarr/internal/logger"
)

// SweepService runs the lifecycle sweep (hold expiry + notification pass)
// on a cron schedule. The sweep is a safety net: the same work happens
// lazily on reads, so a missed or disabled schedule only delays
// notifications, never loses them.
type SweepService struct {
	holds      *HoldService
	simulation *SimulationService
	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.Mutex
	running    bool
}

func NewSweepService(holds *HoldService, simulation *SimulationService) *SweepService {
	return &SweepService{
		holds:      holds,
		simulation: simulation,
		cron:       cron.New(),
	}
}

// Start validates the expression and begins running the sweep on it. An
// empty expression is a no-op.
func (s *SweepService) Start(cronExpr string) error {
	if cronExpr == "" {
		logger.Debugf("Sweep schedule not configured, relying on lazy evaluation")
		return nil
	}
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid sweep cron expression %q: %v", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(cronExpr, s.Sweep)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	logger.Infof("Lifecycle sweep scheduled: %s", cronExpr)
	return nil
}

func (s *SweepService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.cron.Stop()
		s.running = false
	}
}

// Sweep advances expired holds and runs the notification pass once.
func (s *SweepService) Sweep() {
	advanced, err := s.holds.AdvanceAll()
	if err != nil {
		logger.Errorf("Sweep: hold advancement failed: %v", err)
	}

	generated, err := s.simulation.GenerateNotifications()
	if err != nil {
		logger.Errorf("Sweep: notification pass failed: %v", err)
	}

	if advanced > 0 || generated > 0 {
		logger.Infof("Sweep: advanced %d books, generated %d notifications", advanced, generated)
	}
}
