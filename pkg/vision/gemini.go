package vision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"ocular/pkg/config"
	"ocular/pkg/tracker"
)

// Gemini describes images with a Gemini multimodal model.
type Gemini struct {
	client    *genai.Client
	modelName string
	tracker   *tracker.Tracker
	logPath   string

	mu sync.Mutex // serializes the prompt log
}

// NewGemini creates a Gemini describer. The model is checked once; a failed
// check is logged and generation is attempted anyway.
func NewGemini(ctx context.Context, cfg config.VisionConfig, logPath string, t *tracker.Tracker) (*Gemini, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("gemini: no API key configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g := &Gemini{
		client:    client,
		modelName: cfg.Model,
		tracker:   t,
		logPath:   logPath,
	}
	if g.modelName == "" {
		g.modelName = "gemini-2.5-flash"
	}
	if err := g.validateModel(ctx); err != nil {
		slog.Warn("Gemini model validation failed (proceeding anyway)", "error", err)
	}
	return g, nil
}

// Describe implements Describer.
func (g *Gemini) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		g.logPrompt(prompt, fmt.Sprintf("ERROR: %v", err))
		g.tracker.TrackFailure("gemini")
		return "", fmt.Errorf("describe image: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		g.logPrompt(prompt, fmt.Sprintf("TEXT_PARSE_ERROR: %v", err))
		g.tracker.TrackFailure("gemini")
		return "", err
	}

	g.logPrompt(prompt, text)
	g.tracker.TrackSuccess("gemini")
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

func (g *Gemini) logPrompt(prompt, response string) {
	if g.logPath == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(g.logPath), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(g.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	entry := fmt.Sprintf("[%s] PROMPT:\n%s\n\nRESPONSE:\n%s\n%s\n",
		time.Now().Format("2006-01-02 15:04:05"), prompt, wordWrap(response, 80), strings.Repeat("-", 80))
	_, _ = f.WriteString(entry)
}

func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteString("\n")
		}
		n := 0
		for j, word := range strings.Fields(line) {
			if j > 0 {
				if n+len(word)+1 > width {
					out.WriteString("\n")
					n = 0
				} else {
					out.WriteString(" ")
					n++
				}
			}
			out.WriteString(word)
			n += len(word)
		}
	}
	return out.String()
}

// validateModel checks that the configured model exists for the key and
// lists the available ones when it does not.
func (g *Gemini) validateModel(ctx context.Context) error {
	name := g.modelName
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	if _, err := g.client.Models.Get(ctx, name, nil); err == nil {
		slog.Debug("Gemini model validation success", "model", g.modelName)
		return nil
	}

	page, err := g.client.Models.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	var available []string
	for {
		for _, m := range page.Items {
			if strings.Contains(strings.ToLower(m.Name), "gemini") {
				available = append(available, m.Name)
			}
		}
		if page, err = page.Next(ctx); err != nil {
			break
		}
	}
	return fmt.Errorf("model %q not found, available: %s", g.modelName, strings.Join(available, ", "))
}
