// v0
// internal/override/keys.go
package override

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"unicode"
)

// Submitter is the producer side of a Channel.
type Submitter interface {
	Submit(ctx context.Context, cmd Command) error
}

// KeySource turns keyboard input into commands. Each line read is one batch
// of key events; runs of the same key inside it count once, so a held key
// produces a single command.
type KeySource struct {
	in     io.Reader
	logger *slog.Logger
}

func NewKeySource(in io.Reader, logger *slog.Logger) *KeySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySource{in: in, logger: logger.With("component", "keyboard")}
}

// Run reads until EOF, a quit key, or ctx cancellation.
func (k *KeySource) Run(ctx context.Context, out Submitter) error {
	sc := bufio.NewScanner(k.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		for _, cmd := range k.parseLine(sc.Text()) {
			if err := out.Submit(ctx, cmd); err != nil {
				return fmt.Errorf("submit %s: %w", cmd, err)
			}
			k.logger.Info("override_command", "command", string(cmd), "source", "keyboard")
			if cmd == Quit {
				return nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read keys: %w", err)
	}
	return nil
}

func (k *KeySource) parseLine(line string) []Command {
	var (
		out  []Command
		last rune = -1
	)
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		if r == last {
			continue
		}
		last = r
		cmd, ok := KeyCommand(r)
		if !ok {
			k.logger.Warn("override_unknown_key", "key", string(r))
			continue
		}
		out = append(out, cmd)
	}
	return out
}
