package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/tidwall/gjson"

	"github.com/codefionn/chatline/internal/logger"
)

// Terminator ends every frame on the wire.
const Terminator = "\n"

var terminator = []byte(Terminator)

// ErrMalformed is returned for input that is not valid JSON text.
var ErrMalformed = errors.New("malformed json")

// Codec decodes frames and reports dropped input to its logger.
type Codec struct {
	log logger.Sink
}

// New creates a Codec. A nil logger discards diagnostics.
func New(log logger.Sink) *Codec {
	if log == nil {
		log = logger.Nop()
	}
	return &Codec{log: log}
}

// Encode serializes a single value to its canonical text form without a
// terminator. Strings, byte slices and json.RawMessage are taken to be
// serialized JSON already: they are parsed and written back compacted, so a
// payload is never encoded twice.
func Encode(v any) ([]byte, error) {
	switch m := v.(type) {
	case string:
		return compact([]byte(m))
	case []byte:
		return compact(m)
	case json.RawMessage:
		return compact(m)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %T: %w", v, err)
		}
		return data, nil
	}
}

// EncodeBatch encodes each value and appends Terminator after every one.
// Values that fail to encode are left out; their errors are joined into the
// returned error while the remaining frames are still returned.
func EncodeBatch(vs []any) ([]byte, error) {
	var (
		buf  bytes.Buffer
		errs []error
	)
	for i, v := range vs {
		data, err := Encode(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		buf.Write(data)
		buf.WriteString(Terminator)
	}
	return buf.Bytes(), errors.Join(errs...)
}

// Normalize turns a Write argument into request payloads.
//
// message may be a single value, a string (or []byte) holding JSON text, or a
// slice of either. JSON text whose top level is an array counts as a
// sequence and yields one payload per element. Members that cannot be
// encoded are dropped and reported through the joined error.
func Normalize(message any) ([]json.RawMessage, error) {
	if message == nil {
		return nil, nil
	}

	switch m := message.(type) {
	case string:
		return normalizeText([]byte(m))
	case []byte:
		return normalizeText(m)
	case json.RawMessage:
		return normalizeText(m)
	}

	rv := reflect.ValueOf(message)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		var (
			out  []json.RawMessage
			errs []error
		)
		for i := 0; i < rv.Len(); i++ {
			data, err := Encode(rv.Index(i).Interface())
			if err != nil {
				errs = append(errs, fmt.Errorf("item %d: %w", i, err))
				continue
			}
			out = append(out, data)
		}
		return out, errors.Join(errs...)
	}

	data, err := Encode(message)
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{data}, nil
}

func normalizeText(raw []byte) ([]json.RawMessage, error) {
	data, err := compact(raw)
	if err != nil {
		return nil, err
	}
	if data[0] != '[' {
		return []json.RawMessage{data}, nil
	}

	var out []json.RawMessage
	gjson.ParseBytes(data).ForEach(func(_, value gjson.Result) bool {
		out = append(out, json.RawMessage(value.Raw))
		return true
	})
	return out, nil
}

func compact(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return buf.Bytes(), nil
}

// Decode splits raw on Terminator and parses every segment that looks like
// a JSON object or array. Empty segments are skipped. Segments that do not
// start with '{' or '[' are dropped silently since they are the tail or head
// of a frame that was split by the transport; use a Framer in front of
// Decode to reassemble those. Unparseable segments are logged and dropped.
func (c *Codec) Decode(raw []byte) []Response {
	segments := [][]byte{raw}
	if bytes.Contains(raw, terminator) {
		segments = bytes.Split(raw, terminator)
	}

	var out []Response
	for _, seg := range segments {
		seg = bytes.TrimSpace(seg)
		if len(seg) == 0 {
			continue
		}
		if seg[0] != '{' && seg[0] != '[' {
			continue
		}
		if !gjson.ValidBytes(seg) {
			c.log.Warn("dropping malformed frame: %s", preview(seg))
			continue
		}
		resp, err := parseResponse(seg)
		if err != nil {
			c.log.Warn("dropping frame %s: %v", preview(seg), err)
			continue
		}
		out = append(out, resp)
	}
	return out
}

func preview(b []byte) string {
	const limit = 120
	if len(b) > limit {
		return fmt.Sprintf("%q...", b[:limit])
	}
	return fmt.Sprintf("%q", b)
}
