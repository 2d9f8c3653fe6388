package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cassauth/cassauth/internal/api/metrics"
)

const (
	defaultSweepPageSize = 500
	defaultSweepPageRate = 4 // pages per second
)

// Sweeper removes expired session rows.
//
// The sessions table has no index on expire_date, so the only way to purge is
// a full-table scan. The scan is paged and rate-limited: pageSize bounds the
// rows held per round trip, and the limiter caps pages per second so the sweep
// never competes with request traffic for cluster capacity. Intended to run as
// a periodic background job or a one-shot operational command.
type Sweeper struct {
	session  *gocql.Session
	pageSize int
	limiter  *rate.Limiter
	log      zerolog.Logger

	now func() time.Time // test seam
}

func NewSweeper(session *gocql.Session, pageSize int, pagesPerSec float64, log zerolog.Logger) *Sweeper {
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}
	if pagesPerSec <= 0 {
		pagesPerSec = defaultSweepPageRate
	}
	return &Sweeper{
		session:  session,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(rate.Limit(pagesPerSec), 1),
		log:      log,
		now:      time.Now,
	}
}

// Sweep scans the whole sessions table once and deletes every row whose
// expire_date has passed. Returns the number of rows deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	iter := s.session.Query(`SELECT session_key, expire_date FROM sessions`).
		WithContext(ctx).
		PageSize(s.pageSize).
		Iter()

	now := s.now()
	deleted := 0
	scanned := 0

	var key string
	var expireDate time.Time
	for iter.Scan(&key, &expireDate) {
		scanned++
		if scanned%s.pageSize == 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				_ = iter.Close()
				return deleted, err
			}
		}
		if expireDate.After(now) {
			continue
		}
		if err := s.session.Query(`DELETE FROM sessions WHERE session_key = ?`, key).WithContext(ctx).Exec(); err != nil {
			s.log.Warn().Err(err).Str("session_key", key).Msg("failed to delete expired session")
			continue
		}
		deleted++
	}
	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("sweep scan: %w", err)
	}

	metrics.SweepDeletedTotal.Add(float64(deleted))
	s.log.Info().Int("scanned", scanned).Int("deleted", deleted).Msg("expired session sweep finished")
	return deleted, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error().Err(err).Msg("expired session sweep failed")
			}
		}
	}
}
