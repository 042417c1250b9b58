// Package console runs the operator's line-oriented input loops for the hub
// and the peer and logs what each side observes.
package console

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// readLines feeds lines from r into the returned channel until EOF. The
// goroutine may outlive the caller when r is a terminal.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Str("module", "console").Msg("read input")
		}
	}()
	return lines
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
