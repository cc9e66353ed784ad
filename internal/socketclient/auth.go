package socketclient

import (
	"encoding/json"

	"github.com/codefionn/chatline/internal/codec"
)

type authMessage struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// authenticate sends the credential message on the current socket. The
// request is kept outside the pending set so it is never retransmitted by
// flush.
func (c *Client) authenticate() {
	c.setState(StateAuthenticating)

	msg, err := json.Marshal(authMessage{Name: c.username(), ID: c.tracker.NextID()})
	if err != nil {
		c.log.Error("encode credentials: %v", err)
		return
	}
	req, err := c.tracker.CreateRequest(msg)
	if err != nil {
		c.log.Error("create auth request: %v", err)
		return
	}
	c.auth = req

	c.log.Debug("authenticating as %q (id %d)", c.username(), req.ID)
	c.sendFrames([]json.RawMessage{req.Message})
}

// completeAuth consumes the response to the outstanding credential message.
func (c *Client) completeAuth(resp codec.Response) {
	req := c.auth
	c.auth = nil
	req.Resolve(resp.Raw)

	if resp.Type != codec.TypeWelcome {
		c.log.Warn("authentication rejected: %s", resp.Raw)
		return
	}

	c.log.Info("authenticated as %q", c.username())
	c.backoff.Reset()
	c.setState(StateReady)
	c.emit(EventReady, resp.Raw, nil)
	c.flush()
}
