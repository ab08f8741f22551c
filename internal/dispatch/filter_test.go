package dispatch

import (
	"testing"

	"github.com/lib/pq"

	"loadsignal.dev/collector/internal/db"
)

func strptr(s string) *string { return &s }

func sampleArticle() *db.Article {
	return &db.Article{
		ID:             "a1",
		SourceID:       "loadstar",
		Title:          "Rates surge",
		Language:       strptr("en"),
		TransportModes: pq.StringArray{"ocean", "rail"},
		PrimaryTopic:   strptr("freight_rates"),
		Regions:        pq.StringArray{"East Asia", "China"},
		Urgency:        strptr("medium"),
	}
}

func TestFilterEmptyMatchesEverything(t *testing.T) {
	if !(Filter{}).Matches(sampleArticle()) {
		t.Fatal("empty filter must match")
	}
}

func TestFilterFieldsAndTogether(t *testing.T) {
	f := Filter{
		TransportModes: []string{"ocean"},
		Topics:         []string{"freight_rates"},
	}
	if !f.Matches(sampleArticle()) {
		t.Fatal("matching AND filter rejected")
	}

	f.Topics = []string{"port_operations"}
	if f.Matches(sampleArticle()) {
		t.Fatal("failing topic must reject despite matching mode")
	}
}

func TestFilterValuesOrWithinField(t *testing.T) {
	f := Filter{TransportModes: []string{"air", "rail"}}
	if !f.Matches(sampleArticle()) {
		t.Fatal("rail should satisfy the OR")
	}

	f = Filter{TransportModes: []string{"air", "road"}}
	if f.Matches(sampleArticle()) {
		t.Fatal("no overlap should reject")
	}
}

func TestFilterUrgencyMin(t *testing.T) {
	article := sampleArticle()

	f := Filter{UrgencyMin: "medium"}
	if !f.Matches(article) {
		t.Fatal("medium article must pass medium floor")
	}

	f = Filter{UrgencyMin: "high"}
	if f.Matches(article) {
		t.Fatal("medium article must fail high floor")
	}

	article.Urgency = strptr("breaking")
	if !f.Matches(article) {
		t.Fatal("breaking must pass high floor")
	}

	article.Urgency = nil
	if f.Matches(article) {
		t.Fatal("missing urgency must fail a floor")
	}
}

func TestFilterCaseInsensitive(t *testing.T) {
	f := Filter{Regions: []string{"east asia"}}
	if !f.Matches(sampleArticle()) {
		t.Fatal("region matching should be case-insensitive")
	}
}

func TestFromSubscription(t *testing.T) {
	sub := db.Subscription{
		SourceIDs:  pq.StringArray{"loadstar"},
		UrgencyMin: strptr("high"),
	}
	f := FromSubscription(sub)
	if len(f.SourceIDs) != 1 || f.UrgencyMin != "high" {
		t.Fatalf("filter = %+v", f)
	}
}
