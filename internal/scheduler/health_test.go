package scheduler

import (
	"testing"
	"time"

	"loadsignal.dev/collector/internal/db"
)

func TestClassifyHealthRates(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Minute)
	staleCutoff := now.Add(-90 * time.Minute)

	tests := []struct {
		name      string
		succeeded int
		total     int
		want      string
	}{
		{"all succeed", 10, 10, HealthHealthy},
		{"exactly 80%", 8, 10, HealthHealthy},
		{"70%", 7, 10, HealthDegraded},
		{"exactly 50%", 5, 10, HealthDegraded},
		{"40%", 4, 10, HealthFailing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := db.FetchWindowStats{
				Total:         tt.total,
				Succeeded:     tt.succeeded,
				LastSuccessAt: &recent,
			}
			if got := classifyHealth(stats, &recent, staleCutoff); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyHealthStaleness(t *testing.T) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-90 * time.Minute)
	old := now.Add(-4 * time.Hour)

	// Perfect success rate but nothing recent: failing.
	stats := db.FetchWindowStats{Total: 10, Succeeded: 10, LastSuccessAt: &old}
	if got := classifyHealth(stats, &old, staleCutoff); got != HealthFailing {
		t.Fatalf("stale source classified %s, want failing", got)
	}

	// Failures recorded but never a success: failing.
	stats = db.FetchWindowStats{Total: 3, Succeeded: 0}
	if got := classifyHealth(stats, nil, staleCutoff); got != HealthFailing {
		t.Fatalf("never-succeeded source classified %s, want failing", got)
	}
}

func TestClassifyHealthNewSource(t *testing.T) {
	staleCutoff := time.Now().UTC().Add(-90 * time.Minute)
	if got := classifyHealth(db.FetchWindowStats{}, nil, staleCutoff); got != HealthHealthy {
		t.Fatalf("brand-new source classified %s, want healthy", got)
	}
}
