// Package dedup implements the three-level duplicate detection cascade:
// exact canonical-URL match, title SimHash proximity, and content MinHash
// similarity through the in-process LSH index.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/fingerprint"
)

// Reason identifies which level of the cascade matched.
type Reason string

const (
	ReasonURL            Reason = "url"
	ReasonTitleSimhash   Reason = "title_simhash"
	ReasonContentMinhash Reason = "content_minhash"
)

// Outcome is the normal-return result of a dedup check. Duplicate hits are
// expected outcomes, not errors.
type Outcome struct {
	Duplicate   bool
	DuplicateOf string
	Reason      Reason
}

func unique() Outcome { return Outcome{} }

func duplicateOf(id string, reason Reason) Outcome {
	return Outcome{Duplicate: true, DuplicateOf: id, Reason: reason}
}

// Candidate carries the signals of a not-yet-persisted article.
type Candidate struct {
	CanonicalURL   string
	TitleSimhash   uint64
	HasSimhash     bool
	ContentMinhash []uint64
}

// Deduplicator holds the persistent-side lookups plus the two in-process
// indexes: a SimHash cache and the LSH band index. Both are warmed from
// the store on startup and appended to as articles are inserted.
type Deduplicator struct {
	pool   *db.Pool
	logger zerolog.Logger

	simhashThreshold int
	jaccardThreshold float64

	mu        sync.RWMutex
	simhashes map[string]uint64

	lsh *fingerprint.LSHIndex
}

func New(pool *db.Pool, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		pool:             pool,
		logger:           logger.With().Str("component", "dedup").Logger(),
		simhashThreshold: fingerprint.DefaultSimhashDistance,
		jaccardThreshold: fingerprint.DefaultJaccardThreshold,
		simhashes:        make(map[string]uint64),
		lsh:              fingerprint.NewLSHIndex(),
	}
}

// Warmup rebuilds the in-process indexes from persisted fingerprints.
func (d *Deduplicator) Warmup(ctx context.Context) error {
	if d == nil || d.pool == nil {
		return fmt.Errorf("deduplicator is not initialized")
	}

	loaded := 0
	err := d.pool.ScanFingerprints(ctx, func(row db.FingerprintRow) error {
		if row.TitleSimhash != nil {
			d.mu.Lock()
			d.simhashes[row.ID] = uint64(*row.TitleSimhash)
			d.mu.Unlock()
		}
		if len(row.ContentMinhash) == fingerprint.NumPerm {
			signature := make([]uint64, len(row.ContentMinhash))
			for i, v := range row.ContentMinhash {
				signature[i] = uint64(v)
			}
			if err := d.lsh.Insert(row.ID, signature); err != nil {
				return err
			}
		}
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("warm dedup indexes: %w", err)
	}

	d.logger.Info().Int("fingerprints", loaded).Int("lsh_signatures", d.lsh.Len()).Msg("dedup indexes warmed")
	return nil
}

// Check runs the cascade in order and stops on the first hit.
func (d *Deduplicator) Check(ctx context.Context, candidate Candidate) (Outcome, error) {
	if candidate.CanonicalURL == "" {
		return Outcome{}, fmt.Errorf("candidate has no canonical url")
	}

	// Level 1: exact canonical URL.
	existingID, err := d.pool.ArticleIDByURL(ctx, candidate.CanonicalURL)
	if err != nil {
		return Outcome{}, err
	}
	if existingID != "" {
		return duplicateOf(existingID, ReasonURL), nil
	}

	// Level 2: title SimHash proximity over the in-process cache.
	if candidate.HasSimhash {
		if id, hit := d.findSimilarTitle(candidate.TitleSimhash); hit {
			return duplicateOf(id, ReasonTitleSimhash), nil
		}
	}

	// Level 3: content MinHash through the LSH band index.
	if len(candidate.ContentMinhash) == fingerprint.NumPerm {
		matches := d.lsh.Query(candidate.ContentMinhash, d.jaccardThreshold)
		if len(matches) > 0 {
			return duplicateOf(matches[0].ArticleID, ReasonContentMinhash), nil
		}
	}

	return unique(), nil
}

// Record registers a persisted article's fingerprints so subsequent checks
// see them. Called after a successful insert.
func (d *Deduplicator) Record(articleID string, candidate Candidate) {
	if candidate.HasSimhash {
		d.mu.Lock()
		d.simhashes[articleID] = candidate.TitleSimhash
		d.mu.Unlock()
	}
	if len(candidate.ContentMinhash) == fingerprint.NumPerm {
		if err := d.lsh.Insert(articleID, candidate.ContentMinhash); err != nil {
			d.logger.Warn().Err(err).Str("article_id", articleID).Msg("lsh insert failed")
		}
	}
}

// findSimilarTitle linearly scans the SimHash cache. Acceptable into the
// low millions; shard by leading-bit prefix beyond that.
func (d *Deduplicator) findSimilarTitle(target uint64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, h := range d.simhashes {
		if fingerprint.SimhashSimilar(target, h, d.simhashThreshold) {
			return id, true
		}
	}
	return "", false
}
