package speech

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"ocular/pkg/audio"
)

// LanguageSource reports the user's current language.
type LanguageSource interface {
	Language() string
}

// Speaker speaks English text in the user's language and blocks until
// playback ends.
type Speaker struct {
	translator *Translator
	synth      *Synthesizer
	player     audio.Player
	lang       LanguageSource
	dir        string

	mu sync.Mutex // one utterance at a time
}

// NewSpeaker returns a Speaker writing clips under dir.
func NewSpeaker(tr *Translator, synth *Synthesizer, player audio.Player, lang LanguageSource, dir string) *Speaker {
	return &Speaker{translator: tr, synth: synth, player: player, lang: lang, dir: dir}
}

// Speak translates, synthesizes and plays text. A failed translation falls
// back to the English text.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	lang := s.lang.Language()

	out, err := s.translator.Translate(ctx, text, lang)
	if err != nil {
		slog.Warn("Translation failed, speaking English", "lang", lang, "error", err)
		out = text
		lang = "en"
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%x.wav", sha256.Sum256([]byte(lang+"\x00"+out))))
	if _, err := os.Stat(path); err != nil {
		wav, err := s.synth.Synthesize(ctx, out, lang)
		if err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		if err := os.WriteFile(path, wav, 0o644); err != nil {
			return fmt.Errorf("speak: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Debug("Speaking", "lang", lang, "text", out)
	return s.player.Play(ctx, path, true)
}

// LogSpeaker logs text instead of speaking it.
type LogSpeaker struct {
	mu    sync.Mutex
	texts []string
}

// Speak implements the speech output.
func (l *LogSpeaker) Speak(ctx context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, text)
	slog.Info("Speech (not spoken)", "text", text)
	return nil
}

// Spoken returns everything logged so far.
func (l *LogSpeaker) Spoken() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.texts...)
}
