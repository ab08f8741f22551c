package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"loadsignal.dev/collector/internal/adapter"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/dedup"
	"loadsignal.dev/collector/internal/fingerprint"
	"loadsignal.dev/collector/internal/langdetect"
	"loadsignal.dev/collector/internal/textnorm"
)

// ingestOutcome describes what happened to one RawArticle.
type ingestOutcome struct {
	inserted  bool
	duplicate bool
	articleID string
}

// ingestRaw normalizes, fingerprints, dedup-checks, and inserts one raw
// article. Duplicates are normal outcomes, not errors.
func (s *Scheduler) ingestRaw(ctx context.Context, source db.Source, raw adapter.RawArticle) (ingestOutcome, error) {
	canonicalURL, err := fingerprint.CanonicalURL(raw.URL)
	if err != nil {
		return ingestOutcome{}, err
	}

	title := textnorm.Title(raw.Title, source.Name)
	if title == "" {
		title = strings.TrimSpace(raw.Title)
	}
	bodyText := textnorm.Text(raw.BodyText)

	candidate := dedup.Candidate{CanonicalURL: canonicalURL}
	if simhash, ok := fingerprint.Simhash(title); ok {
		candidate.TitleSimhash = simhash
		candidate.HasSimhash = true
	}
	if bodyText != "" {
		if signature, ok := fingerprint.Minhash(bodyText); ok {
			candidate.ContentMinhash = signature
		}
	}

	outcome, err := s.dedup.Check(ctx, candidate)
	if err != nil {
		return ingestOutcome{}, err
	}
	if outcome.Duplicate {
		s.logger.Debug().
			Str("source_id", source.SourceID).
			Str("url", canonicalURL).
			Str("reason", string(outcome.Reason)).
			Str("duplicate_of", outcome.DuplicateOf).
			Msg("duplicate article skipped")
		return ingestOutcome{duplicate: true, articleID: outcome.DuplicateOf}, nil
	}

	article := buildArticle(source, raw, canonicalURL, title, bodyText, candidate)

	inserted, existingID, err := s.pool.InsertArticleIfAbsent(ctx, article)
	if err != nil {
		return ingestOutcome{}, err
	}
	if !inserted {
		// Lost the race on the unique URL index: a concurrent fetch of the
		// same story got there first.
		return ingestOutcome{duplicate: true, articleID: existingID}, nil
	}

	s.dedup.Record(article.ID, candidate)
	return ingestOutcome{inserted: true, articleID: article.ID}, nil
}

func buildArticle(source db.Source, raw adapter.RawArticle, canonicalURL, title, bodyText string, candidate dedup.Candidate) *db.Article {
	now := time.Now().UTC()

	article := &db.Article{
		ID:               uuid.NewString(),
		SourceID:         source.SourceID,
		URL:              canonicalURL,
		Title:            title,
		FetchedAt:        now,
		ProcessingStatus: "pending",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if source.Name != "" {
		name := source.Name
		article.SourceName = &name
	}
	if bodyText != "" {
		article.BodyText = &bodyText
	}
	if md := strings.TrimSpace(raw.BodyMarkdown); md != "" {
		article.BodyMarkdown = &md
	}
	if raw.PublishedAt != nil {
		utc := raw.PublishedAt.UTC()
		article.PublishedAt = &utc
	}

	language := strings.TrimSpace(raw.Language)
	if bodyText != "" {
		language = langdetect.Detect(bodyText)
	}
	if language == "" {
		language = "en"
	}
	article.Language = &language

	if candidate.HasSimhash {
		simhash := int64(candidate.TitleSimhash)
		article.TitleSimhash = &simhash
	}
	if len(candidate.ContentMinhash) == fingerprint.NumPerm {
		signature := make(pq.Int64Array, len(candidate.ContentMinhash))
		for i, v := range candidate.ContentMinhash {
			signature[i] = int64(v)
		}
		article.ContentMinhash = signature
	}

	if len(raw.Metadata) > 0 {
		if encoded, err := json.Marshal(raw.Metadata); err == nil {
			article.RawMetadata = datatypes.JSON(encoded)
		}
	}
	return article
}
