package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"busjp/internal/domain"
	"busjp/internal/hub"
	"busjp/internal/shell"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Client to server message types
const (
	msgViewport       = "viewport"
	msgSearch         = "search"
	msgToggleSearch   = "toggle_search"
	msgToggleDarkMode = "toggle_dark_mode"
	msgLocate         = "locate"
	msgPosition       = "position"
	msgPositionError  = "position_error"
	msgPing           = "ping"
)

type WSHandler struct {
	hub            *hub.Hub
	catalog        shell.Catalog
	tiles          shell.TileLayers
	sendBuffer     int
	originPatterns []string
	logger         *slog.Logger
}

func NewWSHandler(h *hub.Hub, catalog shell.Catalog, tiles shell.TileLayers, sendBuffer int, originPatterns []string, logger *slog.Logger) *WSHandler {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &WSHandler{
		hub:            h,
		catalog:        catalog,
		tiles:          tiles,
		sendBuffer:     sendBuffer,
		originPatterns: originPatterns,
		logger:         logger.With("handler", "ws"),
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ViewportPayload struct {
	Bounds domain.BoundingBox `json:"bounds"`
	Zoom   int                `json:"zoom" validate:"gte=0,lte=24"`
	Width  int                `json:"width,omitempty" validate:"gte=0"`
	Height int                `json:"height,omitempty" validate:"gte=0"`
}

type SearchPayload struct {
	Query string `json:"query"`
}

type PositionPayload struct {
	RequestID string  `json:"requestId"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

type PositionErrorPayload struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// conn bundles the per-connection state the read loop works with
type conn struct {
	client  *hub.Client
	locator *wsLocator
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	session := shell.NewSession(h.catalog, h.tiles, h.logger)
	client := hub.NewClient(uuid.New().String(), session, h.sendBuffer)
	c := &conn{client: client, locator: newWSLocator(client)}

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, ws, client)

	state := session.Snapshot()
	h.send(client, shell.Update{State: &state})
	h.locate(ctx, c)

	h.readLoop(ctx, ws, c)
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *conn) {
	defer func() {
		h.hub.Unregister(c.client)
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", c.client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", c.client.ID, "error", err)
			h.sendError(c.client, "invalid message format")
			continue
		}

		h.dispatch(ctx, c, msg)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *conn, msg WSMessage) {
	session := c.client.Session

	switch msg.Type {
	case msgViewport:
		var p ViewportPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(c.client, "invalid viewport payload")
			return
		}
		if err := validate.Struct(p); err != nil {
			h.sendError(c.client, "invalid viewport: "+describeValidation(err))
			return
		}
		session.SetScreen(p.Width, p.Height)
		h.send(c.client, session.SetViewport(domain.Viewport{Bounds: p.Bounds, Zoom: p.Zoom}))

	case msgSearch:
		var p SearchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(c.client, "invalid search payload")
			return
		}
		h.send(c.client, session.SetQuery(p.Query))

	case msgToggleSearch:
		h.send(c.client, session.ToggleSearch())

	case msgToggleDarkMode:
		h.send(c.client, session.ToggleDarkMode())

	case msgLocate:
		h.locate(ctx, c)

	case msgPosition:
		var p PositionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(c.client, "invalid position payload")
			return
		}
		if !c.locator.succeed(p.RequestID, domain.LatLng{Lat: p.Lat, Lon: p.Lon}) {
			h.logger.Debug("position for unknown request", "client_id", c.client.ID, "request_id", p.RequestID)
		}

	case msgPositionError:
		var p PositionErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(c.client, "invalid position_error payload")
			return
		}
		if !c.locator.fail(p.RequestID, p.Message) {
			h.logger.Debug("position error for unknown request", "client_id", c.client.ID, "request_id", p.RequestID)
		}

	case msgPing:
		if frame, err := hub.Encode(hub.TypePong, nil); err == nil {
			h.deliver(c.client, [][]byte{frame})
		}

	default:
		h.sendError(c.client, "unknown message type: "+msg.Type)
	}
}

// locate starts a background position request; the result is pushed to
// the client when the browser answers.
func (h *WSHandler) locate(ctx context.Context, c *conn) {
	c.client.Session.Locate(ctx, c.locator, func(u shell.Update) {
		h.send(c.client, u)
	})
}

func (h *WSHandler) writeLoop(ctx context.Context, ws *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) send(client *hub.Client, u shell.Update) {
	if u.Empty() {
		return
	}
	frames, err := hub.EncodeUpdate(u)
	if err != nil {
		h.logger.Error("failed to encode update", "client_id", client.ID, "error", err)
		return
	}
	h.deliver(client, frames)
}

func (h *WSHandler) sendError(client *hub.Client, message string) {
	frame, err := hub.Encode(hub.TypeError, hub.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	h.deliver(client, [][]byte{frame})
}

func (h *WSHandler) deliver(client *hub.Client, frames [][]byte) {
	dropped := client.Deliver(frames)
	ServerStats.AddWSMessagesOut(len(frames) - dropped)
	if dropped > 0 {
		h.logger.Debug("client send buffer full", "client_id", client.ID, "dropped", dropped)
	}
}
