// Package socketclient is a persistent client for the line-oriented JSON chat
// protocol spoken over a raw TCP socket.
//
// # Architecture
//
// One event-loop goroutine per Client owns every piece of protocol state:
// the connection state machine, the current socket, the pending request set
// and the authentication slot. Socket readers and writers, timers and
// callers only post events into its mailbox, so no two handlers ever run at
// the same time and no locks guard protocol state.
//
//   - Connection manager: opens a brand-new socket on every attempt,
//     authenticates, reconnects on close and on heartbeat staleness
//   - Authenticator: sends {"name": ..., "id": ...} and waits for
//     {"type":"welcome"}
//   - Request tracker: correlates responses with requests by "id"
//   - Heartbeat monitor: flags a connection that went quiet
//
// # Basic Usage
//
//	client, err := socketclient.New(socketclient.Config{Host: "chat.example.com", Port: 9432})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.SetCredentials("alice", password); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	responses, err := client.Write(ctx, `{"request":"count"}`)
//
// Write may be called before the connection is ready. Requests are held in
// memory and sent, in submission order, as soon as the server welcomes the
// client. They are sent again after every reconnect until answered.
//
// Write returns once every request that is pending at that moment has been
// answered, not only the ones passed to this call. The protocol handles the
// pending set as a whole and so does Write.
//
// # Events
//
// On registers a handler for a named event. Handlers survive reconnects and
// are attached to every socket exactly once. They run one at a time on a
// dispatcher goroutine, so calling Write from a handler is fine.
//
//	client.On(socketclient.EventMessage, func(ev socketclient.Event) {
//	    fmt.Printf("server: %s\n", ev.Data)
//	})
package socketclient
