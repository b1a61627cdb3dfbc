package auth

import (
	"context"
	"time"
)

// SweepIntervals sets the cadence of each maintenance sweep.
type SweepIntervals struct {
	Blacklist    time.Duration
	PendingUsers time.Duration
	Suspensions  time.Duration
	ResetTokens  time.Duration
}

// DefaultSweepIntervals blacklist daily, pending users and reset tokens
// hourly, suspensions every 15 minutes.
func DefaultSweepIntervals() SweepIntervals {
	return SweepIntervals{
		Blacklist:    24 * time.Hour,
		PendingUsers: time.Hour,
		Suspensions:  15 * time.Minute,
		ResetTokens:  time.Hour,
	}
}

// Sweeper removes expired state. Each sweep is a single conditional bulk
// statement so it is safe to run next to live traffic and to repeat.
type Sweeper struct {
	repo   RepositoryManager
	ledger Ledger
	logger Logger
	now    func() time.Time
}

func NewSweeper(repo RepositoryManager, ledger Ledger) *Sweeper {
	return &Sweeper{
		repo:   repo,
		ledger: ledger,
		logger: defLogger{},
		now:    utcNow,
	}
}

func (s *Sweeper) WithLogger(l Logger) *Sweeper {
	s.logger = normalizeLogger(l)
	return s
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Sweeper) PurgeBlacklist(ctx context.Context) error {
	n, err := s.ledger.PurgeExpired(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("purged expired blacklisted tokens", "count", n)
	return nil
}

func (s *Sweeper) PurgePendingUsers(ctx context.Context) error {
	n, err := s.repo.PendingUsers().PurgeExpired(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("purged expired pending registrations", "count", n)
	return nil
}

func (s *Sweeper) UnlockExpired(ctx context.Context) error {
	n, err := s.repo.Users().UnlockExpired(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("unlocked accounts with expired suspensions", "count", n)
	return nil
}

func (s *Sweeper) ClearResetTokens(ctx context.Context) error {
	n, err := s.repo.Users().ClearExpiredResetTokens(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("cleared expired password reset tokens", "count", n)
	return nil
}

// RegisterSweeps adds all sweeps to scheduler. A zero interval falls back
// to its default.
func RegisterSweeps(scheduler Scheduler, sweeper *Sweeper, intervals SweepIntervals) error {
	def := DefaultSweepIntervals()
	pick := func(d, fallback time.Duration) time.Duration {
		if d > 0 {
			return d
		}
		return fallback
	}

	tasks := []struct {
		interval time.Duration
		task     Task
	}{
		{pick(intervals.Blacklist, def.Blacklist), TaskFunc{TaskName: "blacklist.purge", Fn: sweeper.PurgeBlacklist}},
		{pick(intervals.PendingUsers, def.PendingUsers), TaskFunc{TaskName: "pending_users.purge", Fn: sweeper.PurgePendingUsers}},
		{pick(intervals.Suspensions, def.Suspensions), TaskFunc{TaskName: "suspensions.unlock", Fn: sweeper.UnlockExpired}},
		{pick(intervals.ResetTokens, def.ResetTokens), TaskFunc{TaskName: "reset_tokens.clear", Fn: sweeper.ClearResetTokens}},
	}

	for _, t := range tasks {
		if err := scheduler.RegisterPeriodic(t.interval, t.task); err != nil {
			return err
		}
	}
	return nil
}
