package chatproto

import (
	"strconv"
	"sync"
)

// PendingMessage is an optimistic local copy awaiting a server ack.
type PendingMessage struct {
	ClientRef  string
	ReceiverID string
	Text       string
	Attachment *Attachment
}

// Outbox tracks optimistic sends. A message stays pending until the server
// acks it with message-sent or refuses it with send-rejected; pending entries
// never expire on their own.
type Outbox struct {
	mu      sync.Mutex
	seq     int
	pending map[string]PendingMessage
}

func NewOutbox() *Outbox {
	return &Outbox{pending: make(map[string]PendingMessage)}
}

// Add records an optimistic send and returns the payload to put on the wire.
func (o *Outbox) Add(receiverID, text string, attachment *Attachment) SendMessagePayload {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	ref := "out-" + strconv.Itoa(o.seq)
	o.pending[ref] = PendingMessage{
		ClientRef:  ref,
		ReceiverID: receiverID,
		Text:       text,
		Attachment: attachment,
	}
	return SendMessagePayload{
		ClientRef:  ref,
		ReceiverID: receiverID,
		Text:       text,
		Attachment: attachment,
	}
}

// Ack resolves a pending send with the server's stored message. It returns
// false when the ref is unknown, which happens after a reconnect replays an
// ack the client already processed.
func (o *Outbox) Ack(clientRef string) (PendingMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[clientRef]
	if ok {
		delete(o.pending, clientRef)
	}
	return p, ok
}

// Reject removes a pending send that the server refused so the client can
// surface the failure and drop the optimistic copy.
func (o *Outbox) Reject(clientRef string) (PendingMessage, bool) {
	return o.Ack(clientRef)
}

// Pending returns the refs still awaiting an ack.
func (o *Outbox) Pending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	refs := make([]string, 0, len(o.pending))
	for ref := range o.pending {
		refs = append(refs, ref)
	}
	return refs
}
