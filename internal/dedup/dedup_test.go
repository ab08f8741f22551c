package dedup

import (
	"testing"

	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/fingerprint"
)

func testDeduplicator() *Deduplicator {
	return New(nil, zerolog.Nop())
}

func TestRecordAndFindSimilarTitle(t *testing.T) {
	d := testDeduplicator()

	simhash, ok := fingerprint.Simhash("Global shipping rates surge amid port congestion")
	if !ok {
		t.Fatal("expected simhash")
	}
	d.Record("existing", Candidate{TitleSimhash: simhash, HasSimhash: true})

	// Identical fingerprint: distance 0.
	if id, hit := d.findSimilarTitle(simhash); !hit || id != "existing" {
		t.Fatalf("identical simhash not found: id=%q hit=%v", id, hit)
	}

	// Within threshold: flip two bits.
	if _, hit := d.findSimilarTitle(simhash ^ 0b11); !hit {
		t.Fatal("distance-2 fingerprint should match at threshold 3")
	}

	// Beyond threshold: flip five bits.
	if _, hit := d.findSimilarTitle(simhash ^ 0b11111); hit {
		t.Fatal("distance-5 fingerprint should not match at threshold 3")
	}
}

func TestRecordAndQueryMinhash(t *testing.T) {
	d := testDeduplicator()

	body := "Container spot rates on the transpacific eased slightly this week as capacity returned after the holiday blanking program ended and carriers reinstated several loops."
	signature, ok := fingerprint.Minhash(body)
	if !ok {
		t.Fatal("expected signature")
	}
	d.Record("existing", Candidate{ContentMinhash: signature})

	matches := d.lsh.Query(signature, d.jaccardThreshold)
	if len(matches) != 1 || matches[0].ArticleID != "existing" {
		t.Fatalf("matches = %+v", matches)
	}

	other, _ := fingerprint.Minhash("Completely unrelated airline earnings coverage with premium cabin commentary and fleet renewal notes for the coming fiscal year.")
	if got := d.lsh.Query(other, d.jaccardThreshold); len(got) != 0 {
		t.Fatalf("unrelated content matched: %+v", got)
	}
}

func TestRecordIgnoresMalformedSignature(t *testing.T) {
	d := testDeduplicator()
	d.Record("bad", Candidate{ContentMinhash: []uint64{1, 2, 3}})
	if d.lsh.Len() != 0 {
		t.Fatal("short signature must not be indexed")
	}
}

func TestOutcomeHelpers(t *testing.T) {
	u := unique()
	if u.Duplicate {
		t.Fatal("unique outcome marked duplicate")
	}
	dup := duplicateOf("abc", ReasonTitleSimhash)
	if !dup.Duplicate || dup.DuplicateOf != "abc" || dup.Reason != ReasonTitleSimhash {
		t.Fatalf("outcome = %+v", dup)
	}
}
