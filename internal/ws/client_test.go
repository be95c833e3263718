package ws

import "testing"

func TestSendAfterCloseSendIsDropped(t *testing.T) {
	c := &Client{id: "c1", send: make(chan []byte, sendBufferSize)}

	if !c.Send(map[string]any{"type": "ping"}) {
		t.Fatal("send on open client failed")
	}

	c.closeSend()

	// A broadcaster that resolved the connection before the unregister must
	// get a dropped send, not a panic on the closed channel
	if c.Send(map[string]any{"type": "ping"}) {
		t.Error("send after close reported success")
	}

	// Second close is a no-op
	c.closeSend()
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	c := &Client{id: "c1", send: make(chan []byte, 1)}

	if !c.Send("first") {
		t.Fatal("send into empty buffer failed")
	}
	if c.Send("second") {
		t.Error("send into full buffer reported success")
	}
}
