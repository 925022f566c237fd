package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ocular/pkg/audio"
	"ocular/pkg/model"
	"ocular/pkg/request"
)

const sttBase = "https://speech.googleapis.com/v1/speech:recognize"

// Recorder captures a mono LINEAR16 WAV clip from the microphone.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) ([]byte, error)
}

// Transcriber turns a WAV clip into text.
type Transcriber interface {
	Recognize(ctx context.Context, wav []byte, lang string) (string, error)
}

// Prompter plays a recorded prompt.
type Prompter interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Talker speaks free text.
type Talker interface {
	Speak(ctx context.Context, text string) error
}

// CommandRecorder records with an arecord-compatible command writing WAV to
// stdout.
type CommandRecorder struct {
	Command    string
	SampleRate int
}

// Record implements Recorder.
func (r *CommandRecorder) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	rate := r.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	cmd := exec.CommandContext(ctx, r.Command,
		"-q", "-d", strconv.Itoa(secs), "-f", "S16_LE", "-r", strconv.Itoa(rate), "-c", "1", "-t", "wav", "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("record: %s: %w", r.Command, err)
	}
	return out, nil
}

// Recognizer transcribes audio with the speech-to-text API.
type Recognizer struct {
	client     *request.Client
	base       string
	key        string
	sampleRate int
}

// NewRecognizer returns a Recognizer for clips recorded at sampleRate.
func NewRecognizer(client *request.Client, key string, sampleRate int) *Recognizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Recognizer{client: client, base: sttBase, key: key, sampleRate: sampleRate}
}

// Recognize implements Transcriber. Silence yields an empty string.
func (r *Recognizer) Recognize(ctx context.Context, wav []byte, lang string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"encoding":        "LINEAR16",
			"sampleRateHertz": r.sampleRate,
			"languageCode":    model.VoiceLocale(lang),
		},
		"audio": map[string]string{"content": base64.StdEncoding.EncodeToString(wav)},
	})
	if err != nil {
		return "", err
	}

	u := r.base + "?key=" + url.QueryEscape(r.key)
	resp, err := r.client.Post(ctx, u, body, "application/json")
	logRequest("stt", fmt.Sprintf("%d bytes", len(wav)), err)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	var out struct {
		Results []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("recognize: decode: %w", err)
	}
	var parts []string
	for _, res := range out.Results {
		if len(res.Alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(res.Alternatives[0].Transcript))
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Listener asks for and records one phrase.
type Listener struct {
	talker   Talker
	prompts  Prompter
	recorder Recorder
	recog    Transcriber
	lang     LanguageSource
	duration time.Duration
	attempts int
}

// NewListener returns a Listener recording clips of duration. talker and
// prompts may be nil.
func NewListener(talker Talker, prompts Prompter, rec Recorder, recog Transcriber, lang LanguageSource, duration time.Duration) *Listener {
	return &Listener{
		talker:   talker,
		prompts:  prompts,
		recorder: rec,
		recog:    recog,
		lang:     lang,
		duration: duration,
		attempts: 3,
	}
}

// Listen speaks prompt (if any), plays the listening cue and records until
// something is recognised, asking the user to speak again in between. After
// the last attempt it returns an empty string.
func (l *Listener) Listen(ctx context.Context, prompt string) (string, error) {
	if prompt != "" && l.talker != nil {
		if err := l.talker.Speak(ctx, prompt); err != nil {
			slog.Warn("Failed to speak prompt", "error", err)
		}
	}

	for i := 0; i < l.attempts; i++ {
		if i > 0 {
			l.prompt(ctx, audio.SpeakAgain)
		}
		l.prompt(ctx, audio.Listening)

		wav, err := l.recorder.Record(ctx, l.duration)
		if err != nil {
			return "", fmt.Errorf("listen: %w", err)
		}
		text, err := l.recog.Recognize(ctx, wav, l.lang.Language())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("Speech recognition failed", "attempt", i+1, "error", err)
			continue
		}
		if text != "" {
			slog.Info("Heard", "text", text)
			l.prompt(ctx, audio.Processing)
			return text, nil
		}
	}
	return "", nil
}

func (l *Listener) prompt(ctx context.Context, key audio.Key) {
	if l.prompts == nil {
		return
	}
	if err := l.prompts.Prompt(ctx, key); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}
