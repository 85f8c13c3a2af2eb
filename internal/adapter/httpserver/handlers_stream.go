package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/broadcast"
	"github.com/pscheid92/serverlist/internal/domain"
)

const (
	streamServers        = "servers"
	streamSession        = "session"
	maxClientMessageSize = 512
)

var errSlowClient = errors.New("client too slow")

type viewMessage struct {
	Type    app.EventKind        `json:"type"`
	State   app.ViewState        `json:"state,omitempty"`
	Servers []listingResponse    `json:"servers,omitempty"`
	ID      string               `json:"id,omitempty"`
	Status  *domain.StatusResult `json:"status,omitempty"`
}

type sessionMessage struct {
	Type   string          `json:"type"`
	Header *app.HeaderView `json:"header,omitempty"`
	Path   string          `json:"path,omitempty"`
}

func toViewMessage(ev app.ViewEvent, viewer *domain.Identity) viewMessage {
	msg := viewMessage{Type: ev.Kind, State: ev.State}
	switch ev.Kind {
	case app.EventListings:
		msg.Servers = toListingResponses(ev.Listings, viewer)
	case app.EventStatus:
		status := ev.Status
		msg.ID = ev.ListingID
		msg.Status = &status
	}
	return msg
}

func (s *Server) registerStreamRoutes() {
	ws := s.echo.Group("/ws", s.sessionMiddleware)
	ws.GET("/servers", s.handleServersStream)
	ws.GET("/session", s.handleSessionStream)
}

// handleServersStream pushes the listing view: loading, the ordered listings,
// then each status as it resolves. The socket closes once every status is sent.
func (s *Server) handleServersStream(c echo.Context) error {
	key := app.ParseSortKey(c.QueryParam("sort"))
	term := c.QueryParam("q")
	viewer := identity(c)

	conn, writer, release, err := s.openStream(c, streamServers)
	if err != nil || conn == nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	superviseStream(ctx, cancel, conn, writer)

	err = s.view.Stream(ctx, key, term, func(ev app.ViewEvent) error {
		return sendJSON(writer, toViewMessage(ev, viewer))
	})
	switch {
	case err == nil:
		writer.StopGraceful("complete")
	case ctx.Err() != nil, errors.Is(err, errSlowClient):
		writer.Stop()
	default:
		slog.WarnContext(ctx, "Server list stream failed", "error", err)
		writer.StopGraceful("unavailable")
	}
	return nil
}

// handleSessionStream pushes header updates for the caller's session. With
// gated=1 it also pushes a redirect whenever the session becomes anonymous.
func (s *Server) handleSessionStream(c echo.Context) error {
	sid := sessionID(c)
	gated := c.QueryParam("gated") == "1"

	conn, writer, release, err := s.openStream(c, streamSession)
	if err != nil || conn == nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	superviseStream(ctx, cancel, conn, writer)

	push := func(msg sessionMessage) {
		if err := sendJSON(writer, msg); err != nil {
			cancel()
		}
	}

	detach, err := s.presenter.Attach(ctx, sid, func(h app.HeaderView) {
		push(sessionMessage{Type: "header", Header: &h})
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to attach session presenter", "error", err)
		writer.StopGraceful("unavailable")
		return nil
	}
	defer detach()

	if gated {
		unguard, err := s.gate.Guard(ctx, sid, func(path string) {
			push(sessionMessage{Type: "redirect", Path: path})
		})
		if err != nil {
			slog.WarnContext(ctx, "Failed to attach session gate", "error", err)
			writer.StopGraceful("unavailable")
			return nil
		}
		defer unguard()
	}

	<-ctx.Done()
	writer.Stop()
	return nil
}

// openStream upgrades the request and hands the connection to a Writer. release
// must be called once the stream ends. A nil conn with a nil error means the
// upgrade failed and the response is already written.
func (s *Server) openStream(c echo.Context, stream string) (*websocket.Conn, *broadcast.Writer, func(), error) {
	if n := s.wsConnections.Add(1); n > int64(s.config.MaxWebSocketConnections) {
		s.wsConnections.Add(-1)
		return nil, nil, nil, echo.NewHTTPError(http.StatusServiceUnavailable, "too many connections")
	}
	release := func() { s.wsConnections.Add(-1) }

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(!s.config.IsProduction()),
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		release()
		// Upgrade has already written the HTTP error response.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "stream", stream, "error", err)
		return nil, nil, nil, nil
	}
	conn.SetReadLimit(maxClientMessageSize)

	return conn, broadcast.NewWriter(conn, s.clock, s.wsMetrics, stream), release, nil
}

// superviseStream cancels ctx when the client disconnects or the writer gives up.
// The reader goroutine is the connection's only reader.
func superviseStream(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, w *broadcast.Writer) {
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			w.RecordActivity()
		}
	}()
	go func() {
		select {
		case <-w.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
}

func sendJSON(w *broadcast.Writer, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !w.Send(data) {
		return errSlowClient
	}
	return nil
}
