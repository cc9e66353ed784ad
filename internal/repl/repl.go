// Package repl is the interactive front end: credential prompts, the
// command loop and response printing.
package repl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/codefionn/chatline/internal/logger"
)

const prompt = "> "

// Client is the part of the socket client the REPL drives.
type Client interface {
	Write(ctx context.Context, message any) ([]json.RawMessage, error)
	WriteRaw(ctx context.Context, message any) error
}

// REPL reads commands from in and prints results to out.
type REPL struct {
	client   Client
	in       *bufio.Reader
	fd       int
	terminal bool
	log      logger.Sink
	timeout  time.Duration

	mu  sync.Mutex
	out io.Writer
}

// New creates a REPL. in is read line by line.
func New(client Client, in io.Reader, out io.Writer, log logger.Sink) *REPL {
	if log == nil {
		log = logger.Nop()
	}
	r := &REPL{
		client: client,
		in:     bufio.NewReader(in),
		out:    out,
		log:    log,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.fd = int(f.Fd())
		r.terminal = true
	}
	return r
}

// SetTimeout bounds how long each command waits for its responses. Zero
// waits until the context passed to Run is done.
func (r *REPL) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Credentials asks for a username and a password. The password is read
// without echo when stdin is a terminal. A non-empty name skips the
// username question.
func (r *REPL) Credentials(name string) (string, string, error) {
	if name == "" {
		var err error
		name, err = r.ask("Username: ")
		if err != nil {
			return "", "", err
		}
	}

	r.printf("Password: ")
	if r.terminal {
		password, err := term.ReadPassword(r.fd)
		r.printf("\n")
		if err != nil {
			return "", "", err
		}
		return name, strings.TrimSpace(string(password)), nil
	}
	password, err := r.readLine()
	if err != nil {
		return "", "", err
	}
	return name, password, nil
}

func (r *REPL) ask(question string) (string, error) {
	r.printf("%s", question)
	return r.readLine()
}

func (r *REPL) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Run executes commands until /quit, EOF or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.printf("%s", prompt)

		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		cmd, err := Parse(line)
		if err != nil {
			r.printf("%v\n", err)
			continue
		}
		if cmd.Kind == KindQuit {
			return nil
		}
		if err := r.Execute(ctx, cmd); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				r.printf("error: no response within %s\n", r.timeout)
			default:
				r.printf("error: %v\n", err)
			}
		}
	}
}

// Execute sends the command and prints what comes back. Unanswered
// requests stay pending in the client after a timeout.
func (r *REPL) Execute(ctx context.Context, cmd Command) error {
	payload, err := cmd.Payload()
	if err != nil || payload == nil {
		return err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if cmd.Raw() {
		return r.client.WriteRaw(ctx, payload)
	}

	responses, err := r.client.Write(ctx, payload)
	if err != nil {
		return err
	}
	for _, resp := range responses {
		r.Print(resp)
	}
	return nil
}

// Print pretty prints a JSON frame. It is safe to call from event handlers
// while Run is active.
func (r *REPL) Print(frame []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, frame, "", "  "); err != nil {
		r.log.Debug("printing unindentable frame: %v", err)
		buf.Reset()
		buf.Write(frame)
	}
	r.printf("%s\n", buf.String())
}

func (r *REPL) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
