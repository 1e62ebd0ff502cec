package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/pkg/chatproto"
)

// AuthTimeout is how long a fresh socket has to present credentials before
// the server hangs up.
const AuthTimeout = 10 * time.Second

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origins are enforced by the CORS layer in front.
	},
}

// Gateway upgrades HTTP connections, runs the authenticate handshake, and
// dispatches envelope events to the message relay and the signaling relay.
type Gateway struct {
	verifier  auth.TokenVerifier
	registry  Registry
	relay     *Relay
	signaling *Signaling
	logger    zerolog.Logger
}

func NewGateway(verifier auth.TokenVerifier, registry Registry, relay *Relay, signaling *Signaling, logger zerolog.Logger) *Gateway {
	return &Gateway{
		verifier:  verifier,
		registry:  registry,
		relay:     relay,
		signaling: signaling,
		logger:    logger.With().Str("component", "realtime").Logger(),
	}
}

// RegisterRoutes mounts the socket endpoint. Authentication happens in-band
// with the first frame, not via headers, so browser clients can connect.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", g.HandleConnect)
}

// HandleConnect upgrades the request and serves the connection until it
// closes.
func (g *Gateway) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	go g.Serve(context.Background(), &gorillaConnAdapter{conn: ws})
	return nil
}

// Serve runs the full connection lifecycle on an already-established conn.
func (g *Gateway) Serve(ctx context.Context, conn Conn) {
	client, err := g.handshake(conn)
	if err != nil {
		data, encErr := chatproto.Encode(chatproto.EventError, chatproto.ErrorPayload{
			Message: "authentication failed",
		})
		if encErr == nil {
			conn.WriteMessage(gorillawebsocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	userID := client.Identity.UserID
	g.registry.Register(userID, client)
	g.logger.Info().
		Str("user", userID.String()).
		Str("role", client.Identity.Role).
		Int("online", g.registry.OnlineCount()).
		Msg("client connected")

	client.EnqueueEvent(chatproto.EventAuthenticated, chatproto.AuthenticatedPayload{
		UserID: userID.String(),
		Role:   client.Identity.Role,
	})

	go g.writePump(client)
	g.readPump(ctx, client)
}

// handshake reads the first frame, which must be an authenticate event with a
// valid token.
func (g *Gateway) handshake(conn Conn) (*Client, error) {
	type deadlineConn interface{ SetReadDeadline(time.Time) error }
	if dc, ok := conn.(deadlineConn); ok {
		dc.SetReadDeadline(time.Now().Add(AuthTimeout))
		defer dc.SetReadDeadline(time.Time{})
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	env, err := chatproto.Decode(raw)
	if err != nil {
		return nil, err
	}
	if env.Event != chatproto.EventAuthenticate {
		return nil, errors.New("first event must be authenticate")
	}

	var payload chatproto.AuthenticatePayload
	if err := decodeInto(env.Data, &payload); err != nil {
		return nil, err
	}

	identity, err := g.verifier.Verify(payload.Token)
	if err != nil {
		return nil, err
	}

	return newClient(identity, conn, g.logger), nil
}

// readPump dispatches inbound events until the connection drops. On exit the
// presence binding is released only if it still points at this client, so a
// reconnect that raced ahead keeps its registration.
func (g *Gateway) readPump(ctx context.Context, client *Client) {
	userID := client.Identity.UserID
	defer func() {
		released := g.registry.Release(userID, client)
		client.closeSend()
		client.conn.Close()
		g.logger.Info().
			Str("user", userID.String()).
			Bool("released", released).
			Msg("client disconnected")
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := chatproto.Decode(raw)
		if err != nil {
			client.EnqueueEvent(chatproto.EventError, chatproto.ErrorPayload{
				Message: "malformed envelope",
			})
			continue
		}

		switch {
		case env.Event == chatproto.EventSendMessage:
			g.relay.HandleSend(ctx, client, env.Data)
		case g.signaling.Handles(env.Event):
			g.signaling.Relay(client, env.Event, env.Data)
		case env.Event == chatproto.EventAuthenticate:
			// Already authenticated; ignore.
		default:
			client.EnqueueEvent(chatproto.EventError, chatproto.ErrorPayload{
				Message: "unknown event " + env.Event,
			})
		}
	}
}

// writePump drains the send queue onto the wire.
func (g *Gateway) writePump(client *Client) {
	for data := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
			return
		}
	}
}

func decodeInto(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, v)
}

// gorillaConnAdapter wraps a gorilla connection to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}

func (a *gorillaConnAdapter) SetReadDeadline(t time.Time) error {
	return a.conn.SetReadDeadline(t)
}
