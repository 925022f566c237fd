package model

import "strings"

// LanguageInfo holds the code and English name of a language.
type LanguageInfo struct {
	Code string `json:"code"` // e.g., "hi"
	Name string `json:"name"` // e.g., "Hindi"
}

// voiceLocales maps a bare language code to the locale used for speech synthesis and recognition.
var voiceLocales = map[string]string{
	"en": "en-US",
	"hi": "hi-IN",
	"kn": "kn-IN",
	"ta": "ta-IN",
	"te": "te-IN",
	"ml": "ml-IN",
	"mr": "mr-IN",
	"bn": "bn-IN",
	"de": "de-DE",
	"fr": "fr-FR",
	"es": "es-ES",
}

// BaseLanguage strips a region suffix: "hi-IN" -> "hi".
func BaseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}

// VoiceLocale returns the xx-YY locale for a language code, defaulting to en-US.
func VoiceLocale(code string) string {
	if strings.Contains(code, "-") && len(code) == 5 {
		return code
	}
	if loc, ok := voiceLocales[BaseLanguage(code)]; ok {
		return loc
	}
	return "en-US"
}
