package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	writes []string
	raws   []string
	reply  func(msg string) []json.RawMessage
	err    error
	// block makes Write wait for its context, like a lost response
	block bool
}

func (f *fakeClient) Write(ctx context.Context, message any) ([]json.RawMessage, error) {
	f.mu.Lock()
	msg := string(message.(json.RawMessage))
	f.writes = append(f.writes, msg)
	if f.block {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply(msg), nil
	}
	return nil, nil
}

func (f *fakeClient) WriteRaw(_ context.Context, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws = append(f.raws, string(message.(json.RawMessage)))
	return nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		kind   Kind
		params string
		err    error
	}{
		{"", KindNone, "", nil},
		{"   ", KindNone, "", nil},
		{"/send", KindSend, "", nil},
		{"/send hello there ", KindSend, "hello there", nil},
		{`/send {"test":"test"}`, KindSend, `{"test":"test"}`, nil},
		{"/count", KindCount, "", nil},
		{"  /time  ", KindTime, "", nil},
		{`/raw {"request":"count"}`, KindRaw, `{"request":"count"}`, nil},
		{"/quit", KindQuit, "", nil},
		{"/exit", KindQuit, "", nil},
		{"/nope", KindNone, "", ErrInvalidCommand},
		{"count", KindNone, "", ErrInvalidCommand},
		{"/", KindNone, "", ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, tt.params, cmd.Params)
		})
	}
}

func TestCommandPayload(t *testing.T) {
	payload, err := Command{Kind: KindSend, Params: `say "hi"`}.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"send","message":"say \"hi\""}`, string(payload))

	payload, err = Command{Kind: KindCount}.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"count"}`, string(payload))

	payload, err = Command{Kind: KindTime}.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"time"}`, string(payload))

	_, err = Command{Kind: KindRaw, Params: `{"broken"`}.Payload()
	assert.Error(t, err)

	payload, err = Command{Kind: KindQuit}.Payload()
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestRun_DispatchesCommands(t *testing.T) {
	client := &fakeClient{reply: func(msg string) []json.RawMessage {
		return []json.RawMessage{json.RawMessage(`{"id":1,"count":42}`)}
	}}
	in := strings.NewReader("/count\n/send hello world\n/bogus\n/raw {\"request\":\"x\"}\n/quit\n/time\n")
	var out bytes.Buffer

	r := New(client, in, &out, nil)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{
		`{"request":"count"}`,
		`{"message":"hello world","request":"send"}`,
	}, client.writes)
	assert.Equal(t, []string{`{"request":"x"}`}, client.raws)
	assert.Contains(t, out.String(), "Invalid Command")
	assert.Contains(t, out.String(), "\"count\": 42")
}

func TestRun_StopsAtEOF(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer

	r := New(client, strings.NewReader("/count"), &out, nil)
	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, client.writes, 1)
}

func TestRun_ReportsWriteErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("client closed")}
	var out bytes.Buffer

	r := New(client, strings.NewReader("/time\n"), &out, nil)
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "error: client closed")
}

func TestRun_CommandTimeout(t *testing.T) {
	client := &fakeClient{block: true}
	var out bytes.Buffer

	r := New(client, strings.NewReader("/count\n/time\n"), &out, nil)
	r.SetTimeout(20 * time.Millisecond)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{`{"request":"count"}`, `{"request":"time"}`}, client.writes)
	assert.Equal(t, 2, strings.Count(out.String(), "error: no response within 20ms"))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{}
	r := New(client, strings.NewReader("/count\n"), &bytes.Buffer{}, nil)
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, client.writes)
}

func TestCredentials(t *testing.T) {
	var out bytes.Buffer
	r := New(&fakeClient{}, strings.NewReader("alice\n s3cret \n"), &out, nil)

	name, password, err := r.Credentials("")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, "s3cret", password)
	assert.Equal(t, "Username: Password: ", out.String())
}

func TestCredentials_PrefilledName(t *testing.T) {
	var out bytes.Buffer
	r := New(&fakeClient{}, strings.NewReader("pw\n"), &out, nil)

	name, password, err := r.Credentials("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
	assert.Equal(t, "pw", password)
	assert.NotContains(t, out.String(), "Username")
}

func TestPrint_FallsBackToRaw(t *testing.T) {
	var out bytes.Buffer
	r := New(&fakeClient{}, strings.NewReader(""), &out, nil)

	r.Print([]byte(`{"a":1}`))
	r.Print([]byte(`not json`))
	assert.Equal(t, "{\n  \"a\": 1\n}\nnot json\n", out.String())
}
