package fingerprint

import "testing"

func TestSimhashDeterministic(t *testing.T) {
	text := "Global shipping rates surge amid port congestion"
	a, ok := Simhash(text)
	if !ok {
		t.Fatal("expected a fingerprint")
	}
	b, _ := Simhash(text)
	if a != b {
		t.Fatalf("simhash not deterministic: %x vs %x", a, b)
	}
}

func TestSimhashEmpty(t *testing.T) {
	if _, ok := Simhash(""); ok {
		t.Fatal("empty text produced a fingerprint")
	}
	if _, ok := Simhash("! 7 @@@"); ok {
		t.Fatal("text with no tokens produced a fingerprint")
	}
}

func TestSimhashNearDuplicateTitles(t *testing.T) {
	a, _ := Simhash("Global shipping rates surge amid port congestion")
	b, _ := Simhash("Global shipping rates soar amid port congestion")
	dist := HammingDistance(a, b)
	if dist > 12 {
		t.Fatalf("one-word swap moved %d bits, expected a small distance", dist)
	}

	c, _ := Simhash("Air cargo demand slides as peak season fizzles out")
	if HammingDistance(a, c) <= DefaultSimhashDistance {
		t.Fatal("unrelated titles classified as near-duplicates")
	}
}

func TestSimhashIdenticalTitlesZeroDistance(t *testing.T) {
	a, _ := Simhash("Drewry WCI composite index falls 4%")
	b, _ := Simhash("Drewry WCI composite index falls 4%")
	if HammingDistance(a, b) != 0 {
		t.Fatal("identical titles must have zero distance")
	}
}

func TestSimhashCJKTokenization(t *testing.T) {
	tokens := simhashTokens("上海港 congestion 拥堵ab c")
	want := []string{"上", "海", "港", "congestion", "拥", "堵", "ab"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestHammingDistance(t *testing.T) {
	if got := HammingDistance(0b1010, 0b0110); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if !SimhashSimilar(0xFF00, 0xFF03, 3) {
		t.Fatal("distance 2 should be similar at threshold 3")
	}
	if SimhashSimilar(0xFF00, 0xFF0F, 3) {
		t.Fatal("distance 4 should not be similar at threshold 3")
	}
}
