package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Key names a recorded prompt sound.
type Key string

const (
	Booted           Key = "booted"
	Listening        Key = "listening"
	Processing       Key = "processing"
	SpeakAgain       Key = "speak_again"
	InvalidCommand   Key = "invalid_command"
	Compass          Key = "compass"
	CompassExit      Key = "compass_exit"
	ImageCaptured    Key = "image_captured"
	GeneratingAudio  Key = "generating_audio"
	WhatSpecifically Key = "what_are_you_specifically"
	NoRoutes         Key = "noroutes"
	GPSUnavailable   Key = "gps_unavailable"
	EmergencyOn      Key = "emergency_on"
	EmergencyOff     Key = "emergency_off"
	CooldownActive   Key = "cooldown_active"
	Restarting       Key = "restarting"
)

// Keys lists every prompt the device can play.
var Keys = []Key{
	Booted, Listening, Processing, SpeakAgain, InvalidCommand, Compass,
	CompassExit, ImageCaptured, GeneratingAudio, WhatSpecifically, NoRoutes,
	GPSUnavailable, EmergencyOn, EmergencyOff, CooldownActive, Restarting,
}

// Prompts maps keys to files under an assets directory.
type Prompts struct {
	dir    string
	player Player
}

// NewPrompts returns prompts backed by player.
func NewPrompts(dir string, player Player) *Prompts {
	return &Prompts{dir: dir, player: player}
}

// Path returns the file for key.
func (p *Prompts) Path(key Key) string {
	return filepath.Join(p.dir, string(key)+".mp3")
}

// Validate reports every prompt whose file is missing.
func (p *Prompts) Validate() error {
	var errs []error
	for _, k := range Keys {
		if _, err := os.Stat(p.Path(k)); err != nil {
			errs = append(errs, fmt.Errorf("prompt %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Prompt plays key and waits for it to finish.
func (p *Prompts) Prompt(ctx context.Context, key Key) error {
	return p.play(ctx, key, true)
}

// PromptAsync starts key and returns immediately.
func (p *Prompts) PromptAsync(key Key) {
	if err := p.play(context.Background(), key, false); err != nil {
		slog.Warn("Prompt failed", "key", key, "error", err)
	}
}

func (p *Prompts) play(ctx context.Context, key Key, wait bool) error {
	if p == nil || p.player == nil {
		return nil
	}
	return p.player.Play(ctx, p.Path(key), wait)
}

// LogPlayer records plays without a sound device.
type LogPlayer struct{}

// Play implements Player.
func (LogPlayer) Play(ctx context.Context, path string, wait bool) error {
	slog.Info("Audio", "path", path, "wait", wait)
	return ctx.Err()
}

// Stop implements Player.
func (LogPlayer) Stop() {}
