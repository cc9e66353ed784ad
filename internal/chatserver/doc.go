// Package chatserver is a small reference server for the chat protocol.
// It exists for local development and end-to-end tests of the client.
//
// Protocol, one JSON value per line:
//
//	client: {"name":"alice","id":1}
//	server: {"type":"welcome"}                     or {"type":"error","message":"..."}
//	client: {"request":"count","id":2}
//	server: {"id":2,"count":3}
//	client: {"request":"time","id":3}
//	server: {"id":3,"time":"2024-05-01T12:00:00Z"}
//	client: {"request":"send","message":"hi","id":4}
//	server: {"type":"msg","msg":{"ok":true,"reply":4}}
//	others: {"type":"msg","msg":{"type":"chat","from":"alice","message":"hi"}}
//
// A {"type":"heartbeat"} line goes to every authenticated connection on a
// fixed interval.
package chatserver
