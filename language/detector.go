package language

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	log "github.com/sirupsen/logrus"
)

// Detector guesses the language of content bodies. A nil Detector, or one
// configured with fewer than two languages, detects nothing.
type Detector struct {
	detector lingua.LanguageDetector
	codes    map[lingua.Language]string
}

// NewDetector builds a detector limited to the given ISO 639-1 codes. Unknown
// codes are skipped.
func NewDetector(isoCodes []string) *Detector {
	supported := supportedLanguages()

	languages := []lingua.Language{}
	for _, code := range isoCodes {
		lang, ok := isoToLingua(strings.ToLower(strings.TrimSpace(code)), supported)
		if !ok {
			log.WithField("language", code).Warn("Unknown language code, skipping")
			continue
		}
		languages = append(languages, lang)
	}

	// lingua needs at least two candidates
	if len(languages) < 2 {
		log.WithField("languages", isoCodes).Info("Language detection disabled")
		return &Detector{codes: supported}
	}

	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build(),
		codes: supported,
	}
}

func (d *Detector) Enabled() bool {
	return d != nil && d.detector != nil
}

// Detect returns the lowercase ISO 639-1 code of text, or "" when unsure
func (d *Detector) Detect(text string) string {
	if !d.Enabled() || strings.TrimSpace(text) == "" {
		return ""
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return d.codes[lang]
}

func supportedLanguages() map[lingua.Language]string {
	languages := make(map[lingua.Language]string)
	for _, lang := range lingua.AllLanguages() {
		languages[lang] = strings.ToLower(lang.IsoCode639_1().String())
	}
	return languages
}

func isoToLingua(code string, languages map[lingua.Language]string) (lingua.Language, bool) {
	for lang, isoCode := range languages {
		if isoCode == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}
