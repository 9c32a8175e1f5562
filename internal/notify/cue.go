package notify

import (
	"context"
	"errors"
	"os/exec"
)

// Cue plays a short attention signal for freshly arrived activity.
type Cue interface {
	Play(ctx context.Context) error
}

// NopCue ignores every playback request. Used when no player is
// configured; arrival handling works the same, just silently.
type NopCue struct{}

func (NopCue) Play(context.Context) error { return nil }

// CommandCue shells out to a local player (for example "aplay chime.wav"
// or "paplay chime.ogg"). Playback failures are reported, never fatal.
type CommandCue struct {
	name string
	args []string
}

// NewCommandCue constructs a cue around a player command line.
func NewCommandCue(name string, args ...string) (*CommandCue, error) {
	if name == "" {
		return nil, errors.New("notify: empty cue command")
	}
	return &CommandCue{name: name, args: args}, nil
}

func (c *CommandCue) Play(ctx context.Context) error {
	return exec.CommandContext(ctx, c.name, c.args...).Run()
}
