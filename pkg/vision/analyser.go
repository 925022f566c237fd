// Package vision describes the scene in front of the camera.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ocular/pkg/audio"
	"ocular/pkg/device"
	"ocular/pkg/logging"
	"ocular/pkg/model"
)

// ErrNoDescription is returned when the model produced nothing to speak.
var ErrNoDescription = errors.New("no scene description")

// Describer turns a JPEG still and a prompt into a short description.
type Describer interface {
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
}

// Capturer takes one JPEG still.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Listener records one spoken phrase.
type Listener interface {
	Listen(ctx context.Context, prompt string) (string, error)
}

// Prompter plays a recorded prompt.
type Prompter interface {
	Prompt(ctx context.Context, key audio.Key) error
}

// Speaker speaks English text in the user's language.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Analyser captures a still, asks the model about it and speaks the answer.
type Analyser struct {
	camera    Capturer
	describer Describer
	listener  Listener
	prompts   Prompter
	speaker   Speaker
	state     *device.State
	prompt    string
}

// NewAnalyser creates an analyser. state may be nil.
func NewAnalyser(cam Capturer, d Describer, l Listener, p Prompter, s Speaker, state *device.State, prompt string) *Analyser {
	return &Analyser{camera: cam, describer: d, listener: l, prompts: p, speaker: s, state: state, prompt: prompt}
}

// Analyse runs one scene description. With custom set the user is asked
// what they want to know and the answer is appended to the prompt.
func (a *Analyser) Analyse(ctx context.Context, custom bool) error {
	if a.state != nil {
		prev := a.state.SetMode(device.ModeAnalysing)
		defer a.state.SetMode(prev)
	}

	img, err := a.camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("analyse: %w", err)
	}

	prompt := a.prompt
	if custom {
		a.play(ctx, audio.WhatSpecifically)
		extra, err := a.listener.Listen(ctx, "")
		if err != nil {
			return fmt.Errorf("analyse: %w", err)
		}
		if extra = strings.TrimSpace(extra); extra != "" {
			prompt = prompt + " " + extra
		}
	}

	a.play(ctx, audio.ImageCaptured)

	text, err := a.describer.Describe(ctx, img, prompt)
	if err != nil {
		return fmt.Errorf("analyse: %w", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return ErrNoDescription
	}
	slog.Info("Scene described", "custom", custom, "words", len(strings.Fields(text)))
	logging.Event(model.EventAnalysis, "Scene described", text)

	a.play(ctx, audio.GeneratingAudio)
	return a.speaker.Speak(ctx, text)
}

func (a *Analyser) play(ctx context.Context, key audio.Key) {
	if a.prompts == nil {
		return
	}
	if err := a.prompts.Prompt(ctx, key); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}
