package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lox/lifelight/internal/inat"
	"github.com/lox/lifelight/internal/metrics"
	"github.com/lox/lifelight/internal/models"
	"github.com/lox/lifelight/internal/store"
)

// Syncer drives one incremental sync cycle: read the local watermark, fetch
// pages of records updated since it, normalize each page and commit it as one
// batch. Cycles are not safe to run concurrently; the Scheduler serializes
// them.
type Syncer struct {
	store    *store.Store
	client   *inat.Client
	login    string
	listener func([]models.HydratedObservation)
}

func New(st *store.Store, client *inat.Client, login string) *Syncer {
	return &Syncer{store: st, client: client, login: login}
}

// SetListener registers a callback invoked after each committed batch with the
// batch's hydrated observations. Used by the API server to push updates to
// connected clients.
func (s *Syncer) SetListener(fn func([]models.HydratedObservation)) {
	s.listener = fn
}

// Result summarizes one sync cycle.
type Result struct {
	Pages    int
	Upserted int
	Skipped  int
}

// SyncOnce runs a single cycle. A failure on any page aborts the remainder but
// leaves previously committed pages intact; because the watermark reflects
// what actually committed, the next cycle resumes safely from it.
func (s *Syncer) SyncOnce(ctx context.Context) (Result, error) {
	started := time.Now()
	var res Result

	watermark, err := s.store.Watermark()
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("read watermark: %w", err)
	}
	log.Printf("sync: starting cycle for %s since %s", s.login, watermark.Format(time.RFC3339))

	query := inat.BuildQuery(s.login, watermark)
	pager := s.client.Pages(query)

	for {
		page, err := pager.Next(ctx)
		if err != nil {
			metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
		}
		if page == nil {
			break
		}
		res.Pages++

		upserted, skipped, err := s.commitPage(page)
		if err != nil {
			metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("commit page %d: %w", res.Pages, err)
		}
		res.Upserted += upserted
		res.Skipped += skipped
	}

	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()
	metrics.SyncDuration.Observe(time.Since(started).Seconds())
	log.Printf("sync: cycle complete: %d pages, %d observations, %d skipped", res.Pages, res.Upserted, res.Skipped)
	return res, nil
}

// commitPage normalizes a page's records, deduplicates the shared taxon/user
// entities, and writes everything as one batch. Malformed records are skipped
// with a warning so the rest of the page still makes progress.
func (s *Syncer) commitPage(page *inat.ResultPage) (upserted, skipped int, err error) {
	var (
		observations []models.Observation
		taxa         = make(map[int64]models.Taxon)
		users        = make(map[int64]models.User)
		records      []inat.Record
	)

	for _, wire := range page.Results {
		rec, err := inat.Normalize(wire)
		if err != nil {
			log.Printf("sync: skipping record: %v", err)
			metrics.RecordsSkipped.Inc()
			skipped++
			continue
		}
		observations = append(observations, rec.Observation)
		users[rec.User.ID] = rec.User
		if rec.Taxon != nil {
			taxa[rec.Taxon.ID] = *rec.Taxon
		}
		records = append(records, rec)
	}

	if len(observations) == 0 {
		return 0, skipped, nil
	}

	taxonList := make([]models.Taxon, 0, len(taxa))
	for _, t := range taxa {
		taxonList = append(taxonList, t)
	}
	userList := make([]models.User, 0, len(users))
	for _, u := range users {
		userList = append(userList, u)
	}

	if err := s.store.UpsertBatch(observations, taxonList, userList); err != nil {
		return 0, skipped, err
	}
	metrics.ObservationsUpserted.Add(float64(len(observations)))

	if s.listener != nil {
		s.listener(hydrateBatch(records))
	}
	return len(observations), skipped, nil
}

// hydrateBatch assembles hydrated views from the batch itself; every user and
// taxon an observation references was normalized out of the same wire record.
func hydrateBatch(records []inat.Record) []models.HydratedObservation {
	hydrated := make([]models.HydratedObservation, 0, len(records))
	for _, rec := range records {
		hydrated = append(hydrated, models.HydratedObservation{
			Observation: rec.Observation,
			User:        rec.User,
			Taxon:       rec.Taxon,
		})
	}
	return hydrated
}
