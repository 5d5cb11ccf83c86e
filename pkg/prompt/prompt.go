// Package prompt provides the synchronous confirmation port used before
// destructive or lossy operations. Production wires the stdin implementation;
// tests supply a programmed answer.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirmer answers a yes/no question put to the operator.
type Confirmer interface {
	Confirm(question string) bool
}

// Stdin prompts on Out and reads the answer from In. Zero values default to
// os.Stdin / os.Stdout.
type Stdin struct {
	In  io.Reader
	Out io.Writer
}

// Confirm prints the question and accepts y/yes/s/si as affirmative. Any
// other answer, including EOF, declines.
func (s Stdin) Confirm(question string) bool {
	in := s.In
	if in == nil {
		in = os.Stdin
	}
	out := s.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true
	}
	return false
}

// Static always answers with its value. Used for unattended runs and tests.
type Static bool

// Confirm ignores the question.
func (s Static) Confirm(string) bool { return bool(s) }
