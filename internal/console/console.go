// Package console reads typed commands, one per line.
package console

import (
	"bufio"
	"context"
	"io"

	"github.com/petems/instant-replay/internal/command"
	"github.com/rs/zerolog"
)

// Dispatcher receives each non-empty line.
type Dispatcher interface {
	Dispatch(source, text string) (command.Kind, bool)
}

// Run dispatches lines from r until EOF, until ctx is done or until EXIT is
// raised on latch. A blocked read on r is abandoned, not interrupted.
func Run(ctx context.Context, r io.Reader, d Dispatcher, latch *command.Latch, log zerolog.Logger) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-latch.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-latch.Done():
			return nil
		case err := <-errc:
			if err != nil {
				log.Warn().Err(err).Msg("Console input failed")
			} else {
				log.Debug().Msg("Console input closed")
			}
			return err
		case line := <-lines:
			if line == "" {
				continue
			}
			if _, ok := d.Dispatch("typed", line); !ok {
				log.Info().Str("text", line).Msg("Unrecognised typed command")
			}
		}
	}
}
