package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"ocular/pkg/model"
	"ocular/pkg/request"
)

const ttsBase = "https://texttospeech.googleapis.com/v1/text:synthesize"

// MinAudioSize is the smallest plausible synthesized clip. Anything shorter
// is treated as a failed synthesis.
const MinAudioSize = 1024

// ErrNoAudio is returned when synthesis produced no usable audio.
var ErrNoAudio = errors.New("no audio synthesized")

// Synthesizer turns text into LINEAR16 WAV audio.
type Synthesizer struct {
	client *request.Client
	base   string
	key    string
	voice  string
}

// NewSynthesizer returns a Synthesizer. voice is used for languages it
// covers; other languages get the service default voice.
func NewSynthesizer(client *request.Client, key, voice string) *Synthesizer {
	return &Synthesizer{client: client, base: ttsBase, key: key, voice: voice}
}

// Synthesize returns a WAV clip of text spoken in lang.
func (s *Synthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	locale := model.VoiceLocale(lang)
	voice := map[string]string{"languageCode": locale}
	if s.voice != "" && strings.HasPrefix(s.voice, locale) {
		voice["name"] = s.voice
	}

	body, err := json.Marshal(map[string]any{
		"input":       map[string]string{"text": text},
		"voice":       voice,
		"audioConfig": map[string]string{"audioEncoding": "LINEAR16"},
	})
	if err != nil {
		return nil, err
	}

	u := s.base + "?key=" + url.QueryEscape(s.key)
	resp, err := s.client.PostWithCache(ctx, u, body,
		map[string]string{"Content-Type": "application/json"},
		cacheKey("tts", locale+"/"+voice["name"], text))
	logRequest("tts", locale+": "+text, err)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("synthesize: decode: %w", err)
	}
	wav, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("synthesize: audio content: %w", err)
	}
	if len(wav) < MinAudioSize {
		return nil, fmt.Errorf("synthesize: %w (%d bytes)", ErrNoAudio, len(wav))
	}
	return wav, nil
}
