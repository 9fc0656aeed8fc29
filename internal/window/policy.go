// Package window computes whether owner edits are currently permitted,
// anchored to a persisted deployment-start timestamp.
package window

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

type state struct {
	StartDate time.Time `json:"start_date"`
}

// Policy owns the persisted start date. Day 1 is the start day itself;
// editing is allowed while DaysSinceStart() <= windowDays.
type Policy struct {
	mu         sync.Mutex
	path       string
	windowDays int
	start      time.Time
	logger     *slog.Logger

	now func() time.Time
}

// New loads the persisted start date, initializing it to the current time on
// first run.
func New(path string, windowDays int, logger *slog.Logger) (*Policy, error) {
	p := &Policy{path: path, windowDays: windowDays, logger: logger, now: time.Now}

	raw, err := os.ReadFile(path)
	if err == nil {
		var st state
		if jsonErr := json.Unmarshal(raw, &st); jsonErr == nil && !st.StartDate.IsZero() {
			p.start = st.StartDate.UTC()
			return p, nil
		}
		logger.Warn("window state unreadable, reinitializing", "path", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read window state: %w", err)
	}

	p.start = p.now().UTC()
	if err := p.persistLocked(); err != nil {
		return nil, err
	}
	logger.Info("edit window started", "start_date", p.start, "days", windowDays)
	return p, nil
}

// StartDate returns the current window anchor.
func (p *Policy) StartDate() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.start
}

// DaysSinceStart counts inclusively: the start day itself is day 1.
func (p *Policy) DaysSinceStart() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.daysSinceStartLocked()
}

func (p *Policy) daysSinceStartLocked() int {
	return int(p.now().UTC().Sub(p.start)/(24*time.Hour)) + 1
}

// DaysLeft returns how many days of the window remain, never negative.
func (p *Policy) DaysLeft() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	left := p.windowDays - (p.daysSinceStartLocked() - 1)
	if left < 0 {
		return 0
	}
	return left
}

// IsEditingAllowed reports whether owner edits are currently permitted.
func (p *Policy) IsEditingAllowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.daysSinceStartLocked() <= p.windowDays
}

// ResetWindow moves the anchor and persists it. Takes effect immediately for
// all subsequent checks; no session invalidation is required. Setting a start
// far in the past is the documented way to disable editing outright.
func (p *Policy) ResetWindow(newStart time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.start
	p.start = newStart.UTC()
	if err := p.persistLocked(); err != nil {
		p.start = old
		return err
	}
	p.logger.Info("edit window reset", "start_date", p.start)
	return nil
}

func (p *Policy) persistLocked() error {
	raw, err := json.Marshal(state{StartDate: p.start})
	if err != nil {
		return fmt.Errorf("encode window state: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write window state: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write window state: %w", err)
	}
	return nil
}
