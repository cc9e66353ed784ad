package repl

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidCommand is returned for lines that name no known command.
var ErrInvalidCommand = errors.New("Invalid Command")

// Kind identifies a REPL command.
type Kind int

const (
	KindNone Kind = iota
	KindSend
	KindCount
	KindTime
	KindRaw
	KindQuit
)

// Command is a parsed input line.
type Command struct {
	Kind   Kind
	Params string
}

// Raw reports whether the command is sent without waiting for a response.
func (c Command) Raw() bool {
	return c.Kind == KindRaw
}

// Payload returns the JSON request the command sends, nil for commands that
// send nothing.
func (c Command) Payload() (json.RawMessage, error) {
	switch c.Kind {
	case KindSend:
		return json.Marshal(map[string]string{"request": "send", "message": c.Params})
	case KindCount:
		return json.RawMessage(`{"request":"count"}`), nil
	case KindTime:
		return json.RawMessage(`{"request":"time"}`), nil
	case KindRaw:
		if !json.Valid([]byte(c.Params)) {
			return nil, errors.New("/raw needs valid JSON")
		}
		return json.RawMessage(c.Params), nil
	default:
		return nil, nil
	}
}

// Parse splits a line into the command word and its parameters. The first
// character is the command prefix; the word runs up to the first space.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: KindNone}, nil
	}

	word, params := line, ""
	if i := strings.IndexByte(line, ' '); i != -1 {
		word, params = line[:i], strings.TrimSpace(line[i:])
	}
	if len(word) < 2 || word[0] != '/' {
		return Command{}, ErrInvalidCommand
	}

	cmd := Command{Params: params}
	switch word[1:] {
	case "send":
		cmd.Kind = KindSend
	case "count":
		cmd.Kind = KindCount
	case "time":
		cmd.Kind = KindTime
	case "raw":
		cmd.Kind = KindRaw
	case "quit", "exit":
		cmd.Kind = KindQuit
	default:
		return Command{}, ErrInvalidCommand
	}
	return cmd, nil
}
