package collecterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(KindNetwork, fmt.Errorf("fetch feed: %w", base))

	if !errors.Is(wrapped, base) {
		t.Fatal("wrapping must preserve errors.Is")
	}
	if !IsNetwork(wrapped) {
		t.Fatal("kind lost through wrapping")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindParse, nil) != nil {
		t.Fatal("wrapping nil must stay nil")
	}
}

func TestKindOfUnknown(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors have no kind")
	}
}

func TestKindSurvivesOuterWrap(t *testing.T) {
	inner := Wrapf(KindValidation, "sentiment %q unknown", "maybe")
	outer := fmt.Errorf("enrich article: %w", inner)
	if !IsValidation(outer) {
		t.Fatal("kind must survive an outer fmt.Errorf wrap")
	}
}

func TestKindStrings(t *testing.T) {
	tests := map[Kind]string{
		KindNetwork:   "network",
		KindParse:     "parse",
		KindCapacity:  "capacity",
		KindUnknown:   "unknown",
		KindRateLimit: "rate_limit",
	}
	for kind, want := range tests {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
