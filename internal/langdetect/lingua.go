package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// The collector only distinguishes the corpus languages; restricting the
// detector keeps model load small and classification fast.
var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

const minSampleLetters = 6

// Detect returns the ISO 639-1 code of the text, falling back to "en" when
// the sample is too short or classification fails.
func Detect(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return "en"
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minSampleLetters {
		return "en"
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return "en"
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return "en"
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English,
				lingua.Chinese,
				lingua.Japanese,
				lingua.Korean,
				lingua.German,
				lingua.French,
				lingua.Spanish,
			).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
