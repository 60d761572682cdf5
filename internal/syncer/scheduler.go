package syncer

import (
	"context"
	"log"
	"time"
)

// Scheduler runs sync cycles on a fixed interval. Only one cycle is ever in
// flight: ticks are handled on the loop goroutine, so a slow cycle simply
// delays the next one.
type Scheduler struct {
	syncer   *Syncer
	interval time.Duration
}

func NewScheduler(s *Syncer, interval time.Duration) *Scheduler {
	return &Scheduler{syncer: s, interval: interval}
}

// Run syncs immediately, then on every interval tick until ctx is done. Cycle
// failures are logged and retried at the next tick; previously committed pages
// stay usable in the meantime.
func (s *Scheduler) Run(ctx context.Context) {
	if _, err := s.syncer.SyncOnce(ctx); err != nil {
		log.Printf("scheduler: sync: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-ticker.C:
			if _, err := s.syncer.SyncOnce(ctx); err != nil {
				log.Printf("scheduler: sync: %v", err)
			}
		}
	}
}
