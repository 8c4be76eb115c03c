package retention

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nevexa-app/nevexa/internal/logger"
	"github.com/nevexa-app/nevexa/internal/metrics"
)

var log = logger.New("retention")

// MessageDeleter is the slice of the database the sweeper needs.
type MessageDeleter interface {
	DeleteMessagesBefore(cutoff time.Time) (int64, error)
}

// Sweeper deletes messages older than the retention window on an hourly
// cron schedule. Retention is a storage policy, not a user-facing delete:
// Postgres has no TTL index, so a periodic sweep over the created_at index
// stands in for one.
type Sweeper struct {
	db     MessageDeleter
	window time.Duration
	cron   *cron.Cron
}

// NewSweeper creates a sweeper with the given retention window. A zero or
// negative window disables sweeping.
func NewSweeper(db MessageDeleter, window time.Duration) *Sweeper {
	return &Sweeper{db: db, window: window, cron: cron.New()}
}

// Start schedules the hourly sweep and runs one immediately so a restart
// does not leave expired messages around for up to an hour.
func (s *Sweeper) Start() error {
	if s.window <= 0 {
		log.Info("Message retention disabled")
		return nil
	}

	if _, err := s.cron.AddFunc("@hourly", s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Info("Message retention active, window %s", s.window)

	go s.Sweep()
	return nil
}

// Stop halts the schedule; a sweep already in flight finishes.
func (s *Sweeper) Stop() {
	if s.window <= 0 {
		return
	}
	s.cron.Stop()
}

// Sweep deletes everything older than the window once.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().UTC().Add(-s.window)
	deleted, err := s.db.DeleteMessagesBefore(cutoff)
	if err != nil {
		log.Error("Retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		metrics.MessagesExpired.Add(float64(deleted))
		log.Info("Retention sweep removed %d message(s) older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
