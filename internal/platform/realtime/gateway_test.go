package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/domain/messaging"
	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/chatproto"
)

type fakeConn struct {
	in     chan []byte
	writes chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		writes: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return gorillawebsocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.writes <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) feed(t *testing.T, event string, payload interface{}) {
	t.Helper()
	data, err := chatproto.Encode(event, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	c.in <- data
}

func (c *fakeConn) nextFrame(t *testing.T) *chatproto.Envelope {
	t.Helper()
	select {
	case data := <-c.writes:
		env, err := chatproto.Decode(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type stubVerifier struct {
	identities map[string]*auth.Identity
}

func (v stubVerifier) Verify(token string) (*auth.Identity, error) {
	identity, ok := v.identities[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return identity, nil
}

func newGatewayFixture(t *testing.T) (*Gateway, *MemoryRegistry, stubVerifier) {
	t.Helper()
	registry := NewMemoryRegistry()
	svc := messaging.NewService(&stubMessageRepo{}, stubRelations{related: true}, zerolog.Nop())
	verifier := stubVerifier{identities: make(map[string]*auth.Identity)}
	gw := NewGateway(verifier, registry,
		NewRelay(svc, registry, zerolog.Nop()),
		NewSignaling(registry, zerolog.Nop()),
		zerolog.Nop())
	return gw, registry, verifier
}

func waitForOnline(t *testing.T, registry *MemoryRegistry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.OnlineCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d online, got %d", want, registry.OnlineCount())
}

func TestGateway_AuthenticateThenSend(t *testing.T) {
	gw, registry, verifier := newGatewayFixture(t)

	userID := uuid.New()
	verifier.identities["good-token"] = &auth.Identity{UserID: userID, Role: auth.RolePatient}

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		gw.Serve(context.Background(), conn)
		close(done)
	}()

	conn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "good-token"})

	env := conn.nextFrame(t)
	if env.Event != chatproto.EventAuthenticated {
		t.Fatalf("expected authenticated, got %s", env.Event)
	}
	var authed chatproto.AuthenticatedPayload
	if err := json.Unmarshal(env.Data, &authed); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if authed.UserID != userID.String() {
		t.Errorf("expected user %s, got %s", userID, authed.UserID)
	}
	waitForOnline(t, registry, 1)

	conn.feed(t, chatproto.EventSendMessage, chatproto.SendMessagePayload{
		ClientRef:  "out-1",
		ReceiverID: uuid.New().String(),
		Text:       "hello",
	})
	if env := conn.nextFrame(t); env.Event != chatproto.EventMessageSent {
		t.Fatalf("expected message-sent, got %s", env.Event)
	}

	close(conn.in)
	<-done
	waitForOnline(t, registry, 0)
}

func TestGateway_BadTokenClosesConnection(t *testing.T) {
	gw, registry, _ := newGatewayFixture(t)

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		gw.Serve(context.Background(), conn)
		close(done)
	}()

	conn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "wrong"})
	<-done

	if env, err := chatproto.Decode(<-conn.writes); err != nil || env.Event != chatproto.EventError {
		t.Fatalf("expected error frame, got %v (%v)", env, err)
	}
	if !conn.isClosed() {
		t.Error("expected connection closed")
	}
	if registry.OnlineCount() != 0 {
		t.Errorf("expected nobody online, got %d", registry.OnlineCount())
	}
}

func TestGateway_FirstEventMustAuthenticate(t *testing.T) {
	gw, _, verifier := newGatewayFixture(t)
	verifier.identities["good-token"] = &auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor}

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		gw.Serve(context.Background(), conn)
		close(done)
	}()

	conn.feed(t, chatproto.EventSendMessage, chatproto.SendMessagePayload{Text: "hi"})
	<-done

	if !conn.isClosed() {
		t.Error("expected connection closed without authentication")
	}
}

func TestGateway_UnknownEventReportsError(t *testing.T) {
	gw, _, verifier := newGatewayFixture(t)
	verifier.identities["good-token"] = &auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor}

	conn := newFakeConn()
	go gw.Serve(context.Background(), conn)
	defer close(conn.in)

	conn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "good-token"})
	if env := conn.nextFrame(t); env.Event != chatproto.EventAuthenticated {
		t.Fatalf("expected authenticated, got %s", env.Event)
	}

	conn.feed(t, "presence-subscribe", map[string]string{})
	if env := conn.nextFrame(t); env.Event != chatproto.EventError {
		t.Fatalf("expected error for unknown event, got %s", env.Event)
	}
}

func TestGateway_TwoClientsRelayEndToEnd(t *testing.T) {
	gw, registry, verifier := newGatewayFixture(t)

	callerID, calleeID := uuid.New(), uuid.New()
	verifier.identities["caller"] = &auth.Identity{UserID: callerID, Role: auth.RolePatient}
	verifier.identities["callee"] = &auth.Identity{UserID: calleeID, Role: auth.RoleDoctor}

	callerConn, calleeConn := newFakeConn(), newFakeConn()
	go gw.Serve(context.Background(), callerConn)
	go gw.Serve(context.Background(), calleeConn)
	defer close(callerConn.in)
	defer close(calleeConn.in)

	callerConn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "caller"})
	calleeConn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "callee"})
	callerConn.nextFrame(t)
	calleeConn.nextFrame(t)
	waitForOnline(t, registry, 2)

	// Chat message reaches the other socket.
	callerConn.feed(t, chatproto.EventSendMessage, chatproto.SendMessagePayload{
		ReceiverID: calleeID.String(),
		Text:       "ready for the call?",
	})
	if env := callerConn.nextFrame(t); env.Event != chatproto.EventMessageSent {
		t.Fatalf("expected message-sent, got %s", env.Event)
	}
	if env := calleeConn.nextFrame(t); env.Event != chatproto.EventReceiveMessage {
		t.Fatalf("expected receive-message, got %s", env.Event)
	}

	// Call offer reaches the other socket as incoming-call.
	callerConn.feed(t, chatproto.EventCallUser, chatproto.CallUserPayload{
		ReceiverID: calleeID.String(),
		Offer:      json.RawMessage(`{"type":"offer"}`),
	})
	env := calleeConn.nextFrame(t)
	if env.Event != chatproto.EventIncomingCall {
		t.Fatalf("expected incoming-call, got %s", env.Event)
	}
	var signal chatproto.IncomingCallPayload
	if err := json.Unmarshal(env.Data, &signal); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if signal.CallerID != callerID.String() {
		t.Errorf("expected callerId %s, got %s", callerID, signal.CallerID)
	}
}

func TestGateway_EnqueueAfterDisconnectIsSafe(t *testing.T) {
	gw, registry, verifier := newGatewayFixture(t)

	userID := uuid.New()
	verifier.identities["token"] = &auth.Identity{UserID: userID, Role: auth.RoleDoctor}

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		gw.Serve(context.Background(), conn)
		close(done)
	}()

	conn.feed(t, chatproto.EventAuthenticate, chatproto.AuthenticatePayload{Token: "token"})
	conn.nextFrame(t)
	waitForOnline(t, registry, 1)

	// A relay can look up the receiver just before it disconnects and hold
	// the handle past the read pump's shutdown.
	receiver, ok := registry.Lookup(userID)
	if !ok {
		t.Fatal("expected receiver registered")
	}

	close(conn.in)
	<-done
	waitForOnline(t, registry, 0)

	if receiver.EnqueueEvent(chatproto.EventReceiveMessage, receiveMessagePayload{}) {
		t.Error("expected enqueue to report failure after disconnect")
	}
}
