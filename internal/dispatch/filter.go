package dispatch

import (
	"strings"

	"loadsignal.dev/collector/internal/db"
)

// Filter is the subscription predicate: within a field the values OR
// together, across fields they AND. Empty fields match everything.
type Filter struct {
	SourceIDs      []string
	TransportModes []string
	Topics         []string
	Regions        []string
	Languages      []string
	UrgencyMin     string
}

// urgencyRank orders low < medium < high; "breaking" sits above high so a
// high floor still lets breaking items through.
func urgencyRank(urgency string) int {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "low":
		return 1
	case "medium":
		return 2
	case "high":
		return 3
	case "breaking":
		return 4
	default:
		return 0
	}
}

// Matches reports whether the article satisfies every non-empty field.
func (f Filter) Matches(article *db.Article) bool {
	if article == nil {
		return false
	}
	if len(f.SourceIDs) > 0 && !containsFold(f.SourceIDs, article.SourceID) {
		return false
	}
	if len(f.TransportModes) > 0 && !intersects(f.TransportModes, article.TransportModes) {
		return false
	}
	if len(f.Topics) > 0 && !containsFold(f.Topics, deref(article.PrimaryTopic)) {
		return false
	}
	if len(f.Regions) > 0 && !intersects(f.Regions, article.Regions) {
		return false
	}
	if len(f.Languages) > 0 && !containsFold(f.Languages, deref(article.Language)) {
		return false
	}
	if f.UrgencyMin != "" {
		floor := urgencyRank(f.UrgencyMin)
		if floor > 0 && urgencyRank(deref(article.Urgency)) < floor {
			return false
		}
	}
	return true
}

// FromSubscription builds the predicate of a persisted subscription.
func FromSubscription(sub db.Subscription) Filter {
	return Filter{
		SourceIDs:      sub.SourceIDs,
		TransportModes: sub.TransportModes,
		Topics:         sub.Topics,
		Regions:        sub.Regions,
		Languages:      sub.Languages,
		UrgencyMin:     deref(sub.UrgencyMin),
	}
}

func containsFold(haystack []string, needle string) bool {
	for _, v := range haystack {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
