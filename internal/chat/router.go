package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	myMiddleware "directchat/internal/middleware"
	"directchat/internal/user"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenVerifier checks a bearer token and returns the public id it binds.
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

// UserFinder is the part of the credential store the router needs.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*user.User, error)
	FindByPublicID(ctx context.Context, publicID string) (*user.User, error)
}

// MessageStore persists and reads direct messages.
type MessageStore interface {
	Append(ctx context.Context, senderID, receiverID int64, content string) (*Message, error)
	Conversation(ctx context.Context, a, b int64) ([]Message, error)
}

var errUnauthorized = errors.New("unauthorized")

// Router admits websocket connections and handles their events.
type Router struct {
	hub      *Hub
	tokens   TokenVerifier
	users    UserFinder
	messages MessageStore
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

type RouterOption func(*Router)

// WithAllowedOrigins restricts upgrades to the listed Origin values. Without it any
// origin is accepted.
func WithAllowedOrigins(origins []string) RouterOption {
	return func(rt *Router) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		rt.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}
}

func NewRouter(hub *Hub, tokens TokenVerifier, users UserFinder, messages MessageStore, logger *zap.SugaredLogger, opts ...RouterOption) *Router {
	rt := &Router{
		hub:      hub,
		tokens:   tokens,
		users:    users,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// ServeWs handles GET /ws. The token comes from the "token" query parameter or the
// Authorization header. A failed handshake is a bare 401 and the socket is never opened.
func (rt *Router) ServeWs(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = myMiddleware.BearerToken(r)
	}

	u, err := rt.admit(r.Context(), tokenString)
	if err != nil {
		if !errors.Is(err, errUnauthorized) {
			rt.logger.Errorf("Admitting connection: %v", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warnf("Upgrade for %s failed: %v", u.Username, err)
		return
	}

	client := newClient(rt, conn, u, tokenString)
	rt.hub.Subscribe(u.ID, client)
	rt.logger.Infof("User %s connected (%d connection(s))", u.Username, rt.hub.Online(u.ID))

	go client.writePump()
	go client.readPump()
}

func (rt *Router) admit(ctx context.Context, tokenString string) (*user.User, error) {
	if tokenString == "" {
		return nil, errUnauthorized
	}

	publicID, err := rt.tokens.Verify(tokenString)
	if err != nil {
		return nil, errUnauthorized
	}

	u, err := rt.users.FindByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// dispatch handles one inbound frame. Failures are reported to c only and never close
// the connection.
func (rt *Router) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rt.emitError(c, "Malformed payload")
		return
	}

	ctx := context.Background()
	switch env.Event {
	case EventSendMessage:
		rt.sendMessage(ctx, c, env.Data)
	case EventGetConversation:
		rt.getConversation(ctx, c, env.Data)
	default:
		rt.emitError(c, "Unknown event")
	}
}

// reauthorize re-checks the token the connection was admitted with. The socket can
// outlive the token, so every privileged event verifies it again.
func (rt *Router) reauthorize(c *Client) bool {
	publicID, err := rt.tokens.Verify(c.token)
	if err != nil || publicID != c.user.PublicID {
		rt.emitError(c, "Unauthorized")
		return false
	}
	return true
}

func (rt *Router) sendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	if !rt.reauthorize(c) {
		return
	}

	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.emitError(c, "Malformed payload")
		return
	}
	if req.ReceiverUsername == "" || req.Message == nil {
		rt.emitError(c, "Missing required fields")
		return
	}

	receiver, err := rt.users.FindByUsername(ctx, req.ReceiverUsername)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			rt.emitError(c, "Receiver not found")
			return
		}
		rt.internalError(c, "looking up receiver", err)
		return
	}

	msg, err := rt.messages.Append(ctx, c.userID, receiver.ID, *req.Message)
	if err != nil {
		rt.internalError(c, "appending message", err)
		return
	}

	payload, err := encodeEvent(EventNewMessage, msg)
	if err != nil {
		rt.internalError(c, "encoding message", err)
		return
	}

	// The message is already persisted; a missed live delivery is recovered from history.
	delivered := rt.hub.Publish(c.userID, payload)
	if receiver.ID != c.userID {
		delivered += rt.hub.Publish(receiver.ID, payload)
	}
	rt.logger.Debugf("Message %d from %s to %s delivered to %d connection(s)",
		msg.ID, c.user.Username, receiver.Username, delivered)
}

func (rt *Router) getConversation(ctx context.Context, c *Client, data json.RawMessage) {
	if !rt.reauthorize(c) {
		return
	}

	var req GetConversationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		rt.emitError(c, "Malformed payload")
		return
	}
	if req.Username == "" {
		rt.emitError(c, "Missing required fields")
		return
	}

	other, err := rt.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			rt.emitError(c, "User not found")
			return
		}
		rt.internalError(c, "looking up user", err)
		return
	}

	messages, err := rt.messages.Conversation(ctx, c.userID, other.ID)
	if err != nil {
		rt.internalError(c, "loading conversation", err)
		return
	}

	rt.emit(c, EventConversationHistory, ConversationHistory{Messages: messages})
}

func (rt *Router) emit(c *Client, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		rt.logger.Errorf("Encoding %s event: %v", event, err)
		return
	}
	rt.hub.Direct(c, payload)
}

func (rt *Router) emitError(c *Client, msg string) {
	rt.emit(c, EventError, ErrorEvent{Message: msg})
}

func (rt *Router) internalError(c *Client, action string, err error) {
	rt.logger.Errorw("realtime event failed", "user", c.user.Username, "action", action, "error", err)
	rt.emitError(c, "Internal server error")
}
