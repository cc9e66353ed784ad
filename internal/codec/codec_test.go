package codec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/codefionn/chatline/internal/logger"
)

func TestEncode_ParsesStringPayloads(t *testing.T) {
	data, err := Encode(`{ "request": "count",  "id": 1 }`)
	require.NoError(t, err)
	assert.Equal(t, `{"request":"count","id":1}`, string(data))

	data, err = Encode(map[string]any{"request": "time"})
	require.NoError(t, err)
	assert.Equal(t, `{"request":"time"}`, string(data))

	_, err = Encode(`{"request":`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeBatch_TerminatesEveryFrame(t *testing.T) {
	data, err := EncodeBatch([]any{
		map[string]any{"id": 1},
		`{"id":2}`,
		json.RawMessage(`{"id":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n", string(data))
}

func TestEncodeBatch_DropsMalformedItems(t *testing.T) {
	data, err := EncodeBatch([]any{`{"id":1}`, `nope`, `{"id":2}`})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", string(data))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "nil", input: nil, want: nil},
		{name: "object string", input: `{"request":"count"}`, want: []string{`{"request":"count"}`}},
		{name: "array string", input: `[{"a":1}, {"b":2}]`, want: []string{`{"a":1}`, `{"b":2}`}},
		{name: "map", input: map[string]int{"a": 1}, want: []string{`{"a":1}`}},
		{name: "mixed slice", input: []any{`{"a":1}`, map[string]int{"b": 2}}, want: []string{`{"a":1}`, `{"b":2}`}},
		{name: "string slice", input: []string{`{"a":1}`, `{"b":2}`}, want: []string{`{"a":1}`, `{"b":2}`}},
		{name: "malformed", input: `{"a":`, want: nil, wantErr: true},
		{name: "partially malformed", input: []string{`{"a":1}`, `{`}, want: []string{`{"a":1}`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			var gotStr []string
			for _, g := range got {
				gotStr = append(gotStr, string(g))
			}
			assert.Equal(t, tt.want, gotStr)
		})
	}
}

func TestDecode_SplitsBatchedFrames(t *testing.T) {
	c := New(nil)
	out := c.Decode([]byte("{\"id\":1,\"count\":42}\n\n  {\"id\":2}\r\n[1,2]\n"))
	require.Len(t, out, 3)

	assert.Equal(t, KindGeneric, out[0].Kind)
	assert.True(t, out[0].HasID)
	assert.Equal(t, int64(1), out[0].ID)
	assert.JSONEq(t, `{"id":1,"count":42}`, string(out[0].Raw))

	assert.Equal(t, int64(2), out[1].ID)
	assert.False(t, out[2].HasID)
}

func TestDecode_DropsPartialAndMalformedFrames(t *testing.T) {
	var logged []string
	c := New(logger.Func(func(level logger.Level, msg string) {
		logged = append(logged, level.String()+" "+msg)
	}))

	out := c.Decode([]byte("\"count\":3}\n{\"id\":4}\n{\"id\":\n"))
	require.Len(t, out, 1)
	assert.Equal(t, int64(4), out[0].ID)

	require.Len(t, logged, 1, "only the malformed object is reported")
	assert.True(t, strings.HasPrefix(logged[0], "WARN"))
}

func TestDecode_UnwrapsEnvelope(t *testing.T) {
	c := New(nil)
	out := c.Decode([]byte(`{"type":"msg","msg":{"count":7,"reply":3}}`))
	require.Len(t, out, 1)

	resp := out[0]
	assert.Equal(t, KindEnvelope, resp.Kind)
	assert.True(t, resp.HasID)
	assert.Equal(t, int64(3), resp.ID)
	assert.JSONEq(t, `{"count":7,"id":3}`, string(resp.Raw))
}

func TestDecode_EnvelopeOuterReply(t *testing.T) {
	c := New(nil)
	out := c.Decode([]byte(`{"type":"msg","msg":{"count":7},"reply":3}`))
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].ID)
	assert.JSONEq(t, `{"count":7,"id":3}`, string(out[0].Raw))

	// the nested reply wins
	out = c.Decode([]byte(`{"type":"msg","msg":{"reply":5},"reply":3}`))
	require.Len(t, out, 1)
	assert.Equal(t, int64(5), out[0].ID)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw string
		id  int64
		ok  bool
	}{
		{`{"id":3}`, 3, true},
		{`{"id":-2}`, -2, true},
		{`{"id":3.7}`, 0, false},
		{`{"id":1e2}`, 0, false},
		{`{"id":"3"}`, 0, false},
		{`{"id":99999999999999999999}`, 0, false},
		{`{}`, 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseID(gjson.Get(tt.raw, "id"))
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.id, id, tt.raw)
	}

	// a fractional reply does not correlate either
	out := New(nil).Decode([]byte(`{"type":"msg","msg":{"reply":3.7}}`))
	require.Len(t, out, 1)
	assert.False(t, out[0].HasID)
}

func TestDecode_EnvelopeWithoutPayloadIsDropped(t *testing.T) {
	c := New(nil)
	assert.Empty(t, c.Decode([]byte(`{"type":"msg","msg":"hi"}`)))
}

func TestDecode_Kinds(t *testing.T) {
	c := New(nil)
	out := c.Decode([]byte("{\"type\":\"welcome\"}\n{\"type\":\"heartbeat\"}\n{\"type\":\"chat\",\"id\":9}"))
	require.Len(t, out, 3)
	assert.Equal(t, KindWelcome, out[0].Kind)
	assert.Equal(t, KindHeartbeat, out[1].Kind)
	assert.Equal(t, KindGeneric, out[2].Kind)
	assert.Equal(t, "chat", out[2].Type)
}

func TestRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"request": "count", "id": float64(1)},
		map[string]any{"nested": map[string]any{"list": []any{"a", float64(2), true, nil}}},
		[]any{float64(1), "two", map[string]any{"three": float64(3)}},
		map[string]any{"text": "line\nbreak and \"quotes\""},
	}

	c := New(nil)
	for _, v := range values {
		data, err := Encode(v)
		require.NoError(t, err)

		out := c.Decode(data)
		require.Len(t, out, 1)

		var got any
		require.NoError(t, json.Unmarshal(out[0].Raw, &got))
		assert.Equal(t, v, got)
	}
}

func TestIsHeartbeat(t *testing.T) {
	assert.True(t, IsHeartbeat([]byte(`{"type":"heartbeat"}`)))
	assert.True(t, IsHeartbeat([]byte(`{ 'type' : 'heartbeat' }`)))
	assert.True(t, IsHeartbeat([]byte(`{"id":1, "type":  "heartbeat"}`)))
	assert.False(t, IsHeartbeat([]byte(`{"type":"welcome"}`)))
	assert.False(t, IsHeartbeat([]byte(`{"message":"heartbeat"}`)))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "generic", KindGeneric.String())
	assert.Equal(t, "heartbeat", KindHeartbeat.String())
	assert.Equal(t, "welcome", KindWelcome.String())
	assert.Equal(t, "envelope", KindEnvelope.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
