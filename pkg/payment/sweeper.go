package payment

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweepable is implemented by consumed stores that can drop aged
// entries.
type Sweepable interface {
	Sweep(maxAge time.Duration) int
}

// Sweeper periodically prunes consumed-proof entries that aged past the
// challenge timeout and can never verify again.
type Sweeper struct {
	cron   *cron.Cron
	store  Sweepable
	maxAge time.Duration
}

// NewSweeper schedules a sweep on the given cron spec.
func NewSweeper(store Sweepable, spec string, maxAge time.Duration) (*Sweeper, error) {
	if spec == "" {
		spec = "@hourly"
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	s := &Sweeper{
		cron:   cron.New(),
		store:  store,
		maxAge: maxAge,
	}

	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sweeper) sweep() {
	removed := s.store.Sweep(s.maxAge)
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Swept aged payment proofs")
	}
}

// Start begins scheduled sweeping.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduled sweeping.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}
