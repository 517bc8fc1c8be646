package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/logger"
)

// SimClock is the process-wide time source. It returns the real wall-clock
// time unless an administrator has set a simulated instant, which is
// persisted in the settings table and cached here so steady-state reads
// never touch the database.
type SimClock struct {
	repo *db.Repository
	real Clock

	mu        sync.RWMutex
	simulated *time.Time
}

// NewSimClock builds a SimClock, loading any persisted simulated instant.
// A load failure propagates: starting with a silently wrong clock is worse
// than failing startup.
func NewSimClock(repo *db.Repository, real Clock) (*SimClock, error) {
	c := &SimClock{repo: repo, real: real}

	raw, err := db.GetSetting(repo.DB, db.SettingSimulatedDate)
	if errors.Is(err, db.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	t, err := db.ParseTime(raw)
	if err != nil {
		return nil, err
	}
	c.simulated = &t
	logger.Warnf("Clock: resuming with simulated date %s", t.Format(time.RFC3339))
	return c, nil
}

// Now returns the simulated instant if one is set, otherwise real time.
func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.simulated != nil {
		return *c.simulated
	}
	return c.real.Now()
}

// Simulated returns the current simulated instant, or nil when the real
// clock is in effect.
func (c *SimClock) Simulated() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.simulated == nil {
		return nil
	}
	t := *c.simulated
	return &t
}

// RealNow returns the real wall-clock time regardless of any override.
// Only the simulation controller uses this, to timestamp simulation windows.
func (c *SimClock) RealNow() time.Time {
	return c.real.Now()
}

// Set persists the simulated instant (nil clears back to real time) and
// records who changed it. The cache is only updated after a successful
// write: on write failure the error propagates and callers must not assume
// any particular time source.
func (c *SimClock) Set(t *time.Time, actor string) error {
	if t == nil {
		if err := db.DeleteSetting(c.repo.DB, db.SettingSimulatedDate); err != nil {
			return err
		}
	} else {
		if err := db.SetSetting(c.repo.DB, db.SettingSimulatedDate, db.FormatTime(*t)); err != nil {
			return err
		}
	}
	if err := db.SetSetting(c.repo.DB, db.SettingSimulatedDateSetBy, actor); err != nil {
		return err
	}

	c.mu.Lock()
	if t == nil {
		c.simulated = nil
	} else {
		u := *t
		c.simulated = &u
	}
	c.mu.Unlock()

	if t == nil {
		logger.Infof("Clock: simulated date cleared by %s", actor)
	} else {
		logger.Infof("Clock: simulated date set to %s by %s", t.Format(time.RFC3339), actor)
	}
	return nil
}
