package wsgateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/wsproto"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway wires the Hub, its Dispatcher, and the gin HTTP route that
// upgrades incoming connections.
type Gateway struct {
	Hub        *Hub
	Dispatcher *wsproto.Dispatcher
	logger     *logging.Logger

	// OnClientConnected, if set, is called with a newly-registered
	// client's id and its trusted caller identifier (spec.md §1's "assume
	// a trusted caller identifier is attached to each connection", read
	// here from the "user_id" query parameter) right after it is
	// registered with the Hub and before its read/write pumps start (pushes
	// are buffered until the write pump runs), letting the hub layer push its on-connect
	// notification (spec.md §4.6) and register the connection with the
	// Connection Manager.
	OnClientConnected func(connID, userID string)

	// OnClientDisconnected, if set, is called once the connection's read
	// pump returns, letting the hub layer deregister it from the
	// Connection Manager.
	OnClientDisconnected func(connID string)
}

// NewGateway constructs a Gateway with an empty dispatcher and a running
// health check handler registered on it.
func NewGateway(log *logging.Logger) *Gateway {
	if log == nil {
		log = logging.Default()
	}
	dispatcher := wsproto.NewDispatcher()
	hub := NewHub(dispatcher, log)
	registerHealthHandler(dispatcher)

	return &Gateway{
		Hub:        hub,
		Dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws_gateway")),
	}
}

// SetupRoutes registers the WebSocket upgrade endpoint on router.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", g.handleConnection)
}

func (g *Gateway) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	g.logger.Debug("websocket connection established",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	userID := c.Query("user_id")
	if userID == "" {
		userID = clientID
	}

	client := NewClient(clientID, conn, g.Hub, g.logger)
	g.Hub.Register(client)
	if g.OnClientConnected != nil {
		g.OnClientConnected(clientID, userID)
	}

	go client.WritePump()
	client.ReadPump(c.Request.Context())

	if g.OnClientDisconnected != nil {
		g.OnClientDisconnected(clientID)
	}
}

func registerHealthHandler(d *wsproto.Dispatcher) {
	d.RegisterFunc(wsproto.ActionHealthCheck, func(_ context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
		return wsproto.NewResponse(msg.ID, msg.Action, map[string]any{
			"status":  "ok",
			"service": "orchmesh",
		})
	})
}
