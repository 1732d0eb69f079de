package platform

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fentz26/timereports/internal/connectors"
)

// SoundPlayer plays the alarm sound.
type SoundPlayer interface {
	Play(ctx context.Context, asset string) error
}

// CommandPlayer plays the asset with paplay. Without the asset it plays the
// desktop theme's alarm sound instead.
type CommandPlayer struct {
	conn connectors.Connector
}

func NewCommandPlayer(conn connectors.Connector) *CommandPlayer {
	return &CommandPlayer{conn: conn}
}

func (p *CommandPlayer) Play(ctx context.Context, asset string) error {
	cmd, args := "canberra-gtk-play", []string{"--id=alarm-clock-elapsed"}
	if asset != "" {
		if _, err := os.Stat(asset); err == nil {
			cmd, args = "paplay", []string{asset}
		}
	}

	res, err := p.conn.Execute(ctx, cmd, args)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", cmd, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// NoopPlayer is used when no audio tool is installed.
type NoopPlayer struct{}

func (NoopPlayer) Play(ctx context.Context, asset string) error { return nil }
