package db

import (
	"math"
	"strings"
	"testing"
)

func TestVectorLiteral(t *testing.T) {
	got, err := VectorLiteral([]float32{0.5, -1.25, 0})
	if err != nil {
		t.Fatal(err)
	}
	if got != "[0.5,-1.25,0]" {
		t.Fatalf("got %q", got)
	}
}

func TestVectorLiteralLength(t *testing.T) {
	vector := make([]float32, 1024)
	for i := range vector {
		vector[i] = float32(i) / 1024
	}
	literal, err := VectorLiteral(vector)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(literal, "[") || !strings.HasSuffix(literal, "]") {
		t.Fatalf("literal %q not bracketed", literal[:16])
	}
	if strings.Count(literal, ",") != 1023 {
		t.Fatalf("component count = %d", strings.Count(literal, ",")+1)
	}
}

func TestVectorLiteralRejectsInvalid(t *testing.T) {
	if _, err := VectorLiteral(nil); err == nil {
		t.Fatal("empty vector accepted")
	}
	if _, err := VectorLiteral([]float32{float32(math.NaN())}); err == nil {
		t.Fatal("NaN accepted")
	}
	if _, err := VectorLiteral([]float32{float32(math.Inf(1))}); err == nil {
		t.Fatal("Inf accepted")
	}
}
