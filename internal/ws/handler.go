package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/reflexapp/reflex-backend/internal/auth"
	"github.com/reflexapp/reflex-backend/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The socket token is the auth boundary, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registrar mounts the three socket channels on the router:
// /ws/search, /ws/likes and /ws/chat.
type Registrar struct {
	tokens *auth.TokenManager
	swipe  *SwipeEngine
	chat   *ChatEngine
}

func NewRegistrar(tokens *auth.TokenManager, swipe *SwipeEngine, chat *ChatEngine) *Registrar {
	return &Registrar{tokens: tokens, swipe: swipe, chat: chat}
}

func (r *Registrar) Register(router *gin.Engine) {
	router.GET("/ws/search", r.handle(r.swipe.ServeSearch))
	router.GET("/ws/likes", r.handle(r.swipe.ServeLikes))
	router.GET("/ws/chat", r.handle(r.chat.ServeChat))
}

// handle upgrades the request and authenticates it from the ?token= query
// parameter. A bad token gets a 1008 close frame after the upgrade, so the
// client sees a policy violation rather than a failed handshake.
func (r *Registrar) handle(serve func(ctx context.Context, sess *Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "path", c.Request.URL.Path, "err", err)
			return
		}

		userID, err := r.tokens.Verify(c.Query("token"))
		if err != nil {
			sess := NewSession("", conn)
			sess.CloseUnauthorized("authentication failed")
			return
		}

		sess := NewSession(userID, conn)
		logger.Debug("socket connected", "path", c.Request.URL.Path, "user_id", userID)
		serve(c, sess)
		logger.Debug("socket disconnected", "path", c.Request.URL.Path, "user_id", userID)
	}
}
