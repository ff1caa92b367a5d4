package collector

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// keyInterrupt is what Ctrl+C delivers once the terminal is in raw mode,
// where it no longer raises SIGINT.
const keyInterrupt = rune(0x03)

// Keyboard reads single keypresses from a terminal in raw mode.
type Keyboard struct {
	fd       int
	oldState *term.State
	keys     chan rune
	logger   *slog.Logger
}

// OpenKeyboard switches stdin to raw mode and starts delivering
// keypresses on a channel. Fails when stdin is not a terminal; callers
// degrade to tag-less collection in that case.
func OpenKeyboard(logger *slog.Logger) (*Keyboard, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}

	k := &Keyboard{
		fd:       fd,
		oldState: oldState,
		keys:     make(chan rune, 16),
		logger:   logger,
	}

	go k.readLoop()
	return k, nil
}

func (k *Keyboard) readLoop() {
	defer close(k.keys)

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			k.logger.Debug("keyboard read ended", slog.String("error", err.Error()))
			return
		}
		if n == 0 {
			continue
		}
		k.keys <- rune(buf[0])
	}
}

// Keys returns the keypress channel. It is closed when stdin closes.
func (k *Keyboard) Keys() <-chan rune {
	return k.keys
}

// Close restores the terminal to its previous mode.
func (k *Keyboard) Close() {
	if k.oldState != nil {
		term.Restore(k.fd, k.oldState)
		k.oldState = nil
	}
}
