package speech

import (
	"context"
	"log"
	"os/exec"
	"time"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
)

// Speaker voices a status message at the child. Implementations must not
// block the monitoring loop.
type Speaker interface {
	Say(text string, status vision.Status)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Say(string, vision.Status) {}

// CommandSpeaker shells out to a local TTS command (say, espeak-ng, piper).
// When a custom alert clip is configured it is played instead of TTS for
// distracted and absent verdicts.
type CommandSpeaker struct {
	TTSCommand string
	TTSArgs    []string
	ClipPath   string
	Player     string
	Timeout    time.Duration
}

// NewSpeaker builds a speaker from config, falling back to Nop when audio
// is disabled or no command is set.
func NewSpeaker(cfg config.AudioConfig) Speaker {
	if !cfg.Enabled || cfg.TTSCommand == "" {
		return Nop{}
	}
	return &CommandSpeaker{
		TTSCommand: cfg.TTSCommand,
		TTSArgs:    cfg.TTSArgs,
		ClipPath:   cfg.ClipPath,
		Player:     cfg.Player,
		Timeout:    15 * time.Second,
	}
}

func (s *CommandSpeaker) Say(text string, status vision.Status) {
	if text == "" {
		return
	}
	name := s.TTSCommand
	args := append(append([]string(nil), s.TTSArgs...), text)
	if s.ClipPath != "" && s.Player != "" &&
		(status == vision.StatusDistracted || status == vision.StatusAbsent) {
		name = s.Player
		args = []string{s.ClipPath}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
			log.Printf("[speech] %s failed: %v", name, err)
		}
	}()
}
