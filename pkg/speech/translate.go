// Package speech speaks text in the user's language and listens for spoken
// phrases, using the Google Cloud translation, text-to-speech and
// speech-to-text REST APIs.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"ocular/pkg/model"
	"ocular/pkg/request"
)

const translateBase = "https://translation.googleapis.com/language/translate/v2"

// Translator translates English text into the user's language.
type Translator struct {
	client *request.Client
	base   string
	key    string
}

// NewTranslator returns a Translator. With an empty key every text is
// returned unchanged.
func NewTranslator(client *request.Client, key string) *Translator {
	return &Translator{client: client, base: translateBase, key: key}
}

// Translate returns text in target. English targets skip the API.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	lang := model.BaseLanguage(target)
	if t == nil || t.key == "" || text == "" || lang == "" || lang == "en" {
		return text, nil
	}

	body, err := json.Marshal(map[string]string{"q": text, "target": lang})
	if err != nil {
		return "", err
	}
	u := t.base + "?key=" + url.QueryEscape(t.key)
	resp, err := t.client.PostWithCache(ctx, u, body,
		map[string]string{"Content-Type": "application/json"},
		cacheKey("translate", lang, text))
	logRequest("translate", lang+": "+text, err)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}

	var out struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("translate: decode: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}
	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}

func cacheKey(kind, lang, text string) string {
	return fmt.Sprintf("%s:%s:%x", kind, lang, sha256.Sum256([]byte(text)))
}
