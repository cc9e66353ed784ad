package chatserver

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/codefionn/chatline/internal/codec"
)

// Request names understood by the server.
const (
	RequestCount = "count"
	RequestTime  = "time"
	RequestSend  = "send"
)

const typeChat = "chat"

var (
	heartbeatFrame = mustFrame(map[string]string{"type": codec.TypeHeartbeat})
	welcomeFrame   = mustFrame(map[string]string{"type": codec.TypeWelcome})
)

func mustFrame(v any) []byte {
	data, err := encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// encode returns v as a terminated frame.
func encode(v any) ([]byte, error) {
	return codec.EncodeBatch([]any{v})
}

func errorFrame(message string, id gjson.Result) []byte {
	data, _ := sjson.SetBytes([]byte(`{"type":"error"}`), "message", message)
	if id.Exists() {
		data, _ = sjson.SetRawBytes(data, "id", []byte(id.Raw))
	}
	return append(data, codec.Terminator...)
}

// envelope wraps payload the way the server answers chat sends.
func envelope(payload any, replyTo gjson.Result) ([]byte, error) {
	data, err := codec.Encode(map[string]any{"type": codec.TypeEnvelope, "msg": payload})
	if err != nil {
		return nil, err
	}
	if replyTo.Exists() {
		if data, err = sjson.SetRawBytes(data, "msg.reply", []byte(replyTo.Raw)); err != nil {
			return nil, err
		}
	}
	return append(data, codec.Terminator...), nil
}

// reply builds a plain response carrying the request id.
func reply(fields map[string]any, id gjson.Result) ([]byte, error) {
	data, err := codec.Encode(fields)
	if err != nil {
		return nil, err
	}
	if id.Exists() {
		if data, err = sjson.SetRawBytes(data, "id", []byte(id.Raw)); err != nil {
			return nil, err
		}
	}
	return append(data, codec.Terminator...), nil
}
