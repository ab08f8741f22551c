package fingerprint

import (
	"crypto/sha1"
	"encoding/binary"
	"math/bits"
	"math/rand"
	"regexp"
	"strings"
)

const (
	// NumPerm is the MinHash signature length.
	NumPerm = 128
	// ShingleSize is the character n-gram size used for shingling.
	ShingleSize = 5

	maxHash       = (1 << 32) - 1
	mersennePrime = (1 << 61) - 1

	// hashParamSeed pins the (a, b) coefficient generation so every process
	// computes identical signatures.
	hashParamSeed = 42
)

// DefaultJaccardThreshold is the estimator value at or above which two
// bodies are treated as near-duplicate content.
const DefaultJaccardThreshold = 0.85

type hashParam struct {
	a uint64
	b uint64
}

var hashParams = generateHashParams(NumPerm)

func generateHashParams(n int) []hashParam {
	rng := rand.New(rand.NewSource(hashParamSeed))
	params := make([]hashParam, n)
	for i := range params {
		params[i] = hashParam{
			a: uint64(rng.Int63n(mersennePrime-1)) + 1,
			b: uint64(rng.Int63n(mersennePrime)),
		}
	}
	return params
}

var shingleSpace = regexp.MustCompile(`\s+`)

// shingles produces the set of overlapping k-rune windows over the
// lowercased, whitespace-collapsed text.
func shingles(text string, k int) map[string]struct{} {
	normalized := shingleSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	out := make(map[string]struct{})
	if len(runes) < k {
		out[string(runes)] = struct{}{}
		return out
	}
	for i := 0; i+k <= len(runes); i++ {
		out[string(runes[i:i+k])] = struct{}{}
	}
	return out
}

func hashShingle(s string) uint64 {
	digest := sha1.Sum([]byte(s))
	return uint64(binary.LittleEndian.Uint32(digest[:4]))
}

// mulmod computes (a*h) mod mersennePrime without overflow.
func mulmod(a, h uint64) uint64 {
	hi, lo := bits.Mul64(a, h)
	_, rem := bits.Div64(hi, lo, mersennePrime)
	return rem
}

// Minhash computes the 128-value MinHash signature of text. Returns
// (nil, false) when the text is empty.
func Minhash(text string) ([]uint64, bool) {
	sh := shingles(text, ShingleSize)
	if len(sh) == 0 {
		return nil, false
	}

	hashed := make([]uint64, 0, len(sh))
	for s := range sh {
		hashed = append(hashed, hashShingle(s))
	}

	signature := make([]uint64, NumPerm)
	for i, p := range hashParams {
		minVal := uint64(maxHash)
		for _, h := range hashed {
			v := (mulmod(p.a, h) + p.b) % mersennePrime & maxHash
			if v < minVal {
				minVal = v
			}
		}
		signature[i] = minVal
	}
	return signature, true
}

// JaccardEstimate returns the fraction of equal positions between two
// MinHash signatures. Signatures of unequal length estimate to 0.
func JaccardEstimate(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
