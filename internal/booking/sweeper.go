package booking

import (
	"context"
	"time"

	"ticketconcierge/pkg/logger"
)

// ExpirySweeper periodically reports AWAITING_PAYMENT/PENDING bookings past
// their expiryTime, grounded on the teacher's waitlist job-processor idiom
// (a time.Ticker driving a periodic sweep). It is deliberately a reporting
// job only: per spec §5, a payment provider's confirmation must still be
// honored by CompleteBooking even after expiryTime has passed, so this
// sweeper never writes StatusExpired or any other mutation to a booking
// that CompleteBooking could still legitimately finish.
type ExpirySweeper struct {
	repo     Repository
	log      *logger.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewExpirySweeper(repo Repository, log *logger.Logger, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		repo:     repo,
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *ExpirySweeper) Start() {
	go s.run()
}

func (s *ExpirySweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *ExpirySweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *ExpirySweeper) sweep() {
	ctx := context.Background()
	stale, err := s.repo.ListStalePending()
	if err != nil {
		s.log.ErrorWithContext(ctx, "expiry sweep query failed", err, nil)
		return
	}
	if len(stale) == 0 {
		return
	}
	s.log.InfoWithContext(ctx, "stale awaiting-payment bookings observed", map[string]interface{}{
		"count": len(stale),
	})
}
