package fingerprint

import "testing"

func TestMinhashSignatureShape(t *testing.T) {
	sig, ok := Minhash("Container spot rates on the transpacific eased again this week.")
	if !ok {
		t.Fatal("expected a signature")
	}
	if len(sig) != NumPerm {
		t.Fatalf("signature length %d, want %d", len(sig), NumPerm)
	}
}

func TestMinhashEmpty(t *testing.T) {
	if _, ok := Minhash("   "); ok {
		t.Fatal("blank text produced a signature")
	}
}

func TestMinhashDeterministic(t *testing.T) {
	text := "Spot rates from Shanghai to Rotterdam climbed 8% after the diversion announcements."
	a, _ := Minhash(text)
	b, _ := Minhash(text)
	if JaccardEstimate(a, b) != 1.0 {
		t.Fatal("identical text must estimate Jaccard 1.0")
	}
}

func TestJaccardEstimateSymmetric(t *testing.T) {
	a, _ := Minhash("Carriers announced new surcharges for Red Sea diversions effective next month.")
	b, _ := Minhash("Forwarders reported weaker air freight volumes out of Hong Kong in October.")
	if JaccardEstimate(a, b) != JaccardEstimate(b, a) {
		t.Fatal("Jaccard estimator must be symmetric")
	}
}

func TestJaccardEstimateLengthMismatch(t *testing.T) {
	if JaccardEstimate([]uint64{1, 2}, []uint64{1}) != 0 {
		t.Fatal("length mismatch must estimate 0")
	}
	if JaccardEstimate(nil, nil) != 0 {
		t.Fatal("empty signatures must estimate 0")
	}
}

func TestMinhashNearDuplicateContent(t *testing.T) {
	base := "Global container shipping rates surged this week as port congestion worsened across major Asian hubs. Carriers warned shippers to expect extended delays through the end of the quarter, with vessel queues at anchor reaching levels last seen during the pandemic peak."
	reworded := "Global container shipping rates surged this week as port congestion worsened across major Asian hubs. Carriers warned customers to expect extended delays through the end of the quarter, with vessel queues at anchor reaching levels last seen during the pandemic peak."
	unrelated := "The airline reported quarterly earnings above expectations and raised its full-year guidance, citing strong premium cabin demand on transatlantic routes."

	a, _ := Minhash(base)
	b, _ := Minhash(reworded)
	c, _ := Minhash(unrelated)

	if sim := JaccardEstimate(a, b); sim < DefaultJaccardThreshold {
		t.Fatalf("near-duplicate estimated %.3f, want >= %.2f", sim, DefaultJaccardThreshold)
	}
	if sim := JaccardEstimate(a, c); sim >= DefaultJaccardThreshold {
		t.Fatalf("unrelated content estimated %.3f, want < %.2f", sim, DefaultJaccardThreshold)
	}
}

func TestShinglesRuneWindows(t *testing.T) {
	sh := shingles("AbC", 5)
	if len(sh) != 1 {
		t.Fatalf("short text should produce one shingle, got %d", len(sh))
	}
	if _, ok := sh["abc"]; !ok {
		t.Fatal("short text shingle should be the lowercased text itself")
	}

	sh = shingles("hello world", 5)
	if _, ok := sh["hello"]; !ok {
		t.Fatal("expected shingle 'hello'")
	}
	if _, ok := sh["o wor"]; !ok {
		t.Fatal("expected shingle spanning the space")
	}
}
