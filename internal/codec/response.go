package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind tags the known response shapes.
type Kind int

const (
	// KindGeneric is any response without a recognised type tag
	KindGeneric Kind = iota
	// KindHeartbeat is a liveness signal from the server
	KindHeartbeat
	// KindWelcome acknowledges a successful authentication
	KindWelcome
	// KindEnvelope is a "msg" response that has been unwrapped
	KindEnvelope
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindHeartbeat:
		return "heartbeat"
	case KindWelcome:
		return "welcome"
	case KindEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// Type tags used on the wire.
const (
	TypeHeartbeat = "heartbeat"
	TypeWelcome   = "welcome"
	TypeEnvelope  = "msg"
)

// Response is one decoded frame.
type Response struct {
	Kind Kind
	// Type is the value of the "type" field, empty when absent. For
	// envelopes it is the type of the nested payload.
	Type string
	// ID is the correlation id; valid only when HasID is set.
	ID    int64
	HasID bool
	// Raw is the payload after envelope unwrapping.
	Raw json.RawMessage
}

var heartbeatPattern = regexp.MustCompile(`["']type["']\s*:\s*["']heartbeat["']`)

// IsHeartbeat reports whether raw text carries a heartbeat type tag. It is
// a cheap match on the text and does not parse the frame.
func IsHeartbeat(raw []byte) bool {
	return heartbeatPattern.Match(raw)
}

func parseResponse(seg []byte) (Response, error) {
	value := gjson.ParseBytes(seg)
	typ := typeOf(value)

	if typ == TypeEnvelope {
		return unwrapEnvelope(value)
	}

	resp := Response{
		Kind: kindOf(typ),
		Type: typ,
		Raw:  json.RawMessage(append([]byte(nil), seg...)),
	}
	resp.ID, resp.HasID = ParseID(value.Get("id"))
	return resp, nil
}

// unwrapEnvelope returns the msg payload with its id taken from the
// payload's reply field, or from the envelope's when the payload has none.
func unwrapEnvelope(outer gjson.Result) (Response, error) {
	inner := outer.Get(TypeEnvelope)
	if !inner.IsObject() {
		return Response{}, fmt.Errorf("envelope without object payload")
	}

	body := []byte(inner.Raw)
	reply := inner.Get("reply")
	if !reply.Exists() {
		reply = outer.Get("reply")
	}
	if reply.Exists() {
		var err error
		body, err = sjson.SetRawBytes(body, "id", []byte(reply.Raw))
		if err != nil {
			return Response{}, fmt.Errorf("set envelope id: %w", err)
		}
		body, err = sjson.DeleteBytes(body, "reply")
		if err != nil {
			return Response{}, fmt.Errorf("drop envelope reply: %w", err)
		}
	}

	payload := gjson.ParseBytes(body)
	resp := Response{
		Kind: KindEnvelope,
		Type: typeOf(payload),
		Raw:  json.RawMessage(body),
	}
	resp.ID, resp.HasID = ParseID(payload.Get("id"))
	return resp, nil
}

func typeOf(v gjson.Result) string {
	t := v.Get("type")
	if t.Type != gjson.String {
		return ""
	}
	return t.Str
}

func kindOf(typ string) Kind {
	switch typ {
	case TypeHeartbeat:
		return KindHeartbeat
	case TypeWelcome:
		return KindWelcome
	default:
		return KindGeneric
	}
}

// ParseID reads a correlation id. Only integer literals that fit in an
// int64 qualify; 1.5, 1e3 and strings do not.
func ParseID(v gjson.Result) (int64, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	id, err := strconv.ParseInt(v.Raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
