// Package codec implements the line-oriented JSON framing used by the chat
// protocol.
//
// A frame is one JSON object or array followed by Terminator. Several frames
// may be written in a single call and several may arrive in a single read.
// Encode and EncodeBatch produce frames, Decode turns raw bytes back into
// Response values and Framer reassembles frames that a read split in two.
//
// Responses of type "msg" are envelopes: the nested "msg" value is the real
// payload and its "reply" field names the request it answers. Decode unwraps
// them so that
//
//	{"type":"msg","msg":{"count":7,"reply":3}}
//
// is returned as
//
//	{"count":7,"id":3}
//
// Heartbeats are recognised with IsHeartbeat on the raw text before any
// parsing happens.
package codec
