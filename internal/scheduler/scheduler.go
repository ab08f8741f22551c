// Package scheduler runs the periodic per-source collection loops. Every
// source gets its own jittered ticker; fetches share a global concurrency
// limit, and a failure in one source never touches another.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/dedup"
	"loadsignal.dev/collector/internal/enrich"
)

const (
	// sourceRefreshInterval controls how often newly promoted or seeded
	// sources are picked up.
	sourceRefreshInterval = time.Minute

	// backstopInterval re-enqueues pending articles the realtime path
	// missed.
	backstopInterval = 10 * time.Minute
	backstopBatch    = 50

	jitterFraction = 0.10
)

type Scheduler struct {
	pool    *db.Pool
	dedup   *dedup.Deduplicator
	enrich  *enrich.Pipeline
	client  *adapter.Client
	logger  zerolog.Logger
	nowFunc func() time.Time

	fetchSem chan struct{}

	mu         sync.Mutex
	inProgress map[string]bool
	running    map[string]context.CancelFunc

	wg sync.WaitGroup
}

func New(pool *db.Pool, deduplicator *dedup.Deduplicator, pipeline *enrich.Pipeline, fetchConcurrency int, logger zerolog.Logger) *Scheduler {
	if fetchConcurrency < 1 {
		fetchConcurrency = 8
	}
	return &Scheduler{
		pool:       pool,
		dedup:      deduplicator,
		enrich:     pipeline,
		client:     adapter.NewClient(30 * time.Second),
		logger:     logger.With().Str("component", "scheduler").Logger(),
		nowFunc:    func() time.Time { return time.Now().UTC() },
		fetchSem:   make(chan struct{}, fetchConcurrency),
		inProgress: make(map[string]bool),
		running:    make(map[string]context.CancelFunc),
	}
}

// Run starts the source watcher and the enrichment backstop, blocking
// until ctx is done and in-flight fetches have drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.refreshSources(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sourceRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshSources(ctx)
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		s.runBackstop(ctx)
	}()

	<-ctx.Done()
	s.wg.Wait()
}

// refreshSources starts loops for enabled sources that do not have one
// yet and stops loops whose source was disabled.
func (s *Scheduler) refreshSources(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sources, err := s.pool.ListSources(ctx, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing sources failed")
		return
	}

	enabled := make(map[string]db.Source, len(sources))
	for _, source := range sources {
		enabled[source.SourceID] = source
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sourceID, cancel := range s.running {
		if _, still := enabled[sourceID]; !still {
			cancel()
			delete(s.running, sourceID)
			s.logger.Info().Str("source_id", sourceID).Msg("source loop stopped")
		}
	}

	for sourceID, source := range enabled {
		if _, already := s.running[sourceID]; already {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		s.running[sourceID] = cancel
		s.wg.Add(1)
		go s.runSourceLoop(loopCtx, source)
		s.logger.Info().
			Str("source_id", sourceID).
			Int("interval_minutes", source.FetchIntervalMinutes).
			Msg("source loop started")
	}
}

// runSourceLoop fetches one source forever at its configured cadence,
// jittered ±10% so sources never align.
func (s *Scheduler) runSourceLoop(ctx context.Context, source db.Source) {
	defer s.wg.Done()

	interval := time.Duration(source.FetchIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	// First fetch happens after a short randomized delay so a process
	// restart does not hammer every source at once.
	delay := time.Duration(rand.Int63n(int64(interval / 10)))
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.FetchSource(ctx, source.SourceID)
		delay = jitteredInterval(interval)
	}
}

func jitteredInterval(interval time.Duration) time.Duration {
	jitter := float64(interval) * jitterFraction
	offset := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(interval) + offset)
}

// FetchSource runs one complete fetch cycle for a source id. Reentrant
// calls for the same source are skipped while a cycle is running.
func (s *Scheduler) FetchSource(ctx context.Context, sourceID string) {
	if !s.tryLock(sourceID) {
		s.logger.Info().Str("source_id", sourceID).Msg("fetch already in progress, tick skipped")
		return
	}
	defer s.unlock(sourceID)

	select {
	case s.fetchSem <- struct{}{}:
		defer func() { <-s.fetchSem }()
	case <-ctx.Done():
		return
	}

	source, err := s.pool.GetSource(ctx, sourceID)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", sourceID).Msg("loading source failed")
		return
	}
	if !source.Enabled {
		return
	}

	s.fetchOnce(ctx, *source)
}

func (s *Scheduler) tryLock(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress[sourceID] {
		return false
	}
	s.inProgress[sourceID] = true
	return true
}

func (s *Scheduler) unlock(sourceID string) {
	s.mu.Lock()
	delete(s.inProgress, sourceID)
	s.mu.Unlock()
}

func (s *Scheduler) fetchOnce(ctx context.Context, source db.Source) {
	logger := s.logger.With().Str("source_id", source.SourceID).Logger()
	startedAt := s.nowFunc()

	fetchLog := &db.FetchLog{
		SourceID:  source.SourceID,
		StartedAt: startedAt,
		Status:    "started",
	}
	if err := s.pool.CreateFetchLog(ctx, fetchLog); err != nil {
		logger.Error().Err(err).Msg("writing fetch log failed, aborting tick")
		return
	}

	adapterImpl, err := adapter.New(source.Kind, s.client)
	if err != nil {
		s.completeFetch(ctx, fetchLog, startedAt, 0, 0, 0, "failed", err.Error())
		logger.Error().Err(err).Msg("no adapter for source")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, adapter.DefaultDeadline)
	defer cancel()

	rawArticles, fetchErr := adapterImpl.Fetch(fetchCtx, source)

	var (
		newIDs        []string
		articlesDedup int
		ingestErrs    int
	)
	for _, raw := range rawArticles {
		if ctx.Err() != nil {
			break
		}
		outcome, err := s.ingestRaw(ctx, source, raw)
		if err != nil {
			ingestErrs++
			logger.Warn().Err(err).Str("url", raw.URL).Msg("article ingest failed")
			continue
		}
		switch {
		case outcome.duplicate:
			articlesDedup++
		case outcome.inserted:
			newIDs = append(newIDs, outcome.articleID)
		}
	}

	status := "success"
	errorMessage := ""
	switch {
	case fetchErr != nil && len(rawArticles) == 0:
		status = "failed"
		errorMessage = fetchErr.Error()
	case fetchErr != nil || ingestErrs > 0:
		status = "partial"
		if fetchErr != nil {
			errorMessage = fetchErr.Error()
		} else {
			errorMessage = fmt.Sprintf("%d articles failed to ingest", ingestErrs)
		}
	}

	s.completeFetch(ctx, fetchLog, startedAt, len(rawArticles), len(newIDs), articlesDedup, status, errorMessage)

	if err := s.pool.TouchSourceFetched(ctx, source.SourceID, s.nowFunc()); err != nil {
		logger.Error().Err(err).Msg("updating last_fetched_at failed")
	}
	s.updateHealth(ctx, source)

	if len(newIDs) > 0 && s.enrich != nil {
		s.enrich.Enqueue(newIDs...)
	}

	logger.Info().
		Int("found", len(rawArticles)).
		Int("new", len(newIDs)).
		Int("dedup", articlesDedup).
		Str("status", status).
		Dur("duration", s.nowFunc().Sub(startedAt)).
		Msg("fetch complete")
}

func (s *Scheduler) completeFetch(ctx context.Context, fetchLog *db.FetchLog, startedAt time.Time, found, inserted, deduped int, status, errorMessage string) {
	completedAt := s.nowFunc()
	durationMS := completedAt.Sub(startedAt).Milliseconds()

	fetchLog.CompletedAt = &completedAt
	fetchLog.Status = status
	fetchLog.ArticlesFound = found
	fetchLog.ArticlesNew = inserted
	fetchLog.ArticlesDedup = deduped
	fetchLog.DurationMS = &durationMS
	if errorMessage != "" {
		if len(errorMessage) > 1000 {
			errorMessage = errorMessage[:1000]
		}
		fetchLog.ErrorMessage = &errorMessage
	}

	if err := s.pool.CompleteFetchLog(ctx, fetchLog); err != nil {
		s.logger.Error().Err(err).Str("source_id", fetchLog.SourceID).Msg("completing fetch log failed")
	}
}

// runBackstop periodically sweeps pending articles into the enrichment
// queue, covering any enqueue signal that was lost.
func (s *Scheduler) runBackstop(ctx context.Context) {
	if s.enrich == nil {
		return
	}
	ticker := time.NewTicker(backstopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.enrich.EnqueuePending(ctx, backstopBatch)
			if err != nil {
				s.logger.Error().Err(err).Msg("enrichment backstop failed")
				continue
			}
			if count > 0 {
				s.logger.Info().Int("count", count).Msg("backstop enqueued pending articles")
			}
		}
	}
}
