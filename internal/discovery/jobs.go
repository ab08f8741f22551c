package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const validateInterval = 2 * time.Hour

// Jobs owns the two periodic discovery tasks. Each task carries an
// in-memory re-entrance guard; guards do not survive restarts, so a crash
// mid-scan can produce one duplicate scan, which is acceptable.
type Jobs struct {
	engine    *Engine
	validator *Validator
	logger    zerolog.Logger

	scanInterval  time.Duration
	validateBatch int

	running            atomic.Bool
	scanInProgress     atomic.Bool
	validateInProgress atomic.Bool

	mu     sync.Mutex
	status Status
}

// Status is the operator-visible discovery state.
type Status struct {
	Running            bool         `json:"running"`
	ScanInProgress     bool         `json:"scan_in_progress"`
	ValidateInProgress bool         `json:"validate_in_progress"`
	LastScanAt         *time.Time   `json:"last_scan_at,omitempty"`
	LastValidateAt     *time.Time   `json:"last_validate_at,omitempty"`
	TotalScans         int          `json:"total_scans"`
	TotalValidations   int          `json:"total_validations"`
	LastScanResult     *ScanResult  `json:"last_scan_result,omitempty"`
	LastValidateResult *BatchResult `json:"last_validate_result,omitempty"`
}

func NewJobs(engine *Engine, validator *Validator, scanIntervalHours, validateBatch int, enabled bool, logger zerolog.Logger) *Jobs {
	if scanIntervalHours < 1 {
		scanIntervalHours = 24
	}
	if validateBatch < 1 {
		validateBatch = 10
	}
	jobs := &Jobs{
		engine:        engine,
		validator:     validator,
		logger:        logger.With().Str("component", "discovery-jobs").Logger(),
		scanInterval:  time.Duration(scanIntervalHours) * time.Hour,
		validateBatch: validateBatch,
	}
	jobs.running.Store(enabled)
	return jobs
}

// Run drives both cadences until ctx ends. When discovery is stopped the
// tickers keep firing but the work is skipped.
func (j *Jobs) Run(ctx context.Context) {
	scanTicker := time.NewTicker(j.scanInterval)
	validateTicker := time.NewTicker(validateInterval)
	defer scanTicker.Stop()
	defer validateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-scanTicker.C:
			if j.running.Load() {
				j.RunScan(ctx)
			}
		case <-validateTicker.C:
			if j.running.Load() {
				j.RunValidate(ctx)
			}
		}
	}
}

// Start resumes the periodic jobs.
func (j *Jobs) Start() {
	j.running.Store(true)
	j.logger.Info().Msg("discovery started")
}

// Stop pauses the periodic jobs; a manual trigger still works.
func (j *Jobs) Stop() {
	j.running.Store(false)
	j.logger.Info().Msg("discovery stopped")
}

// RunScan executes one scan unless another is in flight.
func (j *Jobs) RunScan(ctx context.Context) (ScanResult, bool) {
	if !j.scanInProgress.CompareAndSwap(false, true) {
		j.logger.Info().Msg("scan already in progress, skipping")
		return ScanResult{}, false
	}
	defer j.scanInProgress.Store(false)

	result, err := j.engine.Scan(ctx)
	now := time.Now().UTC()

	j.mu.Lock()
	j.status.LastScanAt = &now
	j.status.TotalScans++
	if err == nil {
		j.status.LastScanResult = &result
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Error().Err(err).Msg("discovery scan failed")
		return ScanResult{}, false
	}
	return result, true
}

// RunValidate executes one validation batch unless another is in flight.
func (j *Jobs) RunValidate(ctx context.Context) (BatchResult, bool) {
	if !j.validateInProgress.CompareAndSwap(false, true) {
		j.logger.Info().Msg("validation already in progress, skipping")
		return BatchResult{}, false
	}
	defer j.validateInProgress.Store(false)

	result, err := j.validator.ValidateBatch(ctx, j.validateBatch)
	now := time.Now().UTC()

	j.mu.Lock()
	j.status.LastValidateAt = &now
	j.status.TotalValidations++
	if err == nil {
		j.status.LastValidateResult = &result
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Error().Err(err).Msg("discovery validation failed")
		return BatchResult{}, false
	}
	return result, true
}

// Status snapshots the current discovery state.
func (j *Jobs) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	snapshot := j.status
	snapshot.Running = j.running.Load()
	snapshot.ScanInProgress = j.scanInProgress.Load()
	snapshot.ValidateInProgress = j.validateInProgress.Load()
	return snapshot
}
