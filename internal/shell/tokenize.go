package shell

import (
	"errors"
	"fmt"
)

// DefaultMaxArgs bounds the tokens of one command line, name included.
const DefaultMaxArgs = 10

var (
	// ErrUsage marks errors caused by a malformed command line. They are
	// answered with a fixed reply and never touch the link otherwise.
	ErrUsage = errors.New("shell: usage error")

	ErrNoCommand     = fmt.Errorf("%w: no command given", ErrUsage)
	ErrTooManyTokens = fmt.Errorf("%w: too many arguments", ErrUsage)
)

// Command is one tokenised request line.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits line on spaces. Runs of spaces separate tokens and a
// space directly after a backslash stays inside its token, backslash
// included. More than maxArgs tokens returns the first maxArgs of them
// together with ErrTooManyTokens.
func ParseCommand(line string, maxArgs int) (Command, error) {
	if maxArgs <= 0 {
		maxArgs = DefaultMaxArgs
	}

	var tokens []string
	start := -1
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case start < 0 && c != ' ':
			start = i
		case start >= 0 && c == ' ' && line[i-1] != '\\':
			tokens = append(tokens, line[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}

	if len(tokens) == 0 {
		return Command{}, ErrNoCommand
	}
	var err error
	if len(tokens) > maxArgs {
		tokens = tokens[:maxArgs]
		err = fmt.Errorf("%w (limit %d)", ErrTooManyTokens, maxArgs)
	}
	return Command{Name: tokens[0], Args: tokens[1:]}, err
}
