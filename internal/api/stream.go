package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/veluna/stylebot/internal/engine"
)

// writeTimeout bounds one websocket write so a stalled dashboard client
// cannot block the broadcast loop.
const writeTimeout = 5 * time.Second

// DashboardFeed fans TurnEvents out to connected dashboard clients over
// websocket. Slow or dead clients are dropped, never waited on.
type DashboardFeed struct {
	mu     sync.Mutex
	conns  map[int64]*websocket.Conn
	nextID int64
	done   chan struct{}
}

// NewDashboardFeed creates the feed and starts its broadcast loop on events.
func NewDashboardFeed(events <-chan engine.TurnEvent) *DashboardFeed {
	f := &DashboardFeed{
		conns: make(map[int64]*websocket.Conn),
		done:  make(chan struct{}),
	}
	go f.broadcastLoop(events)
	return f
}

func (f *DashboardFeed) broadcastLoop(events <-chan engine.TurnEvent) {
	slog.Info("dashboard feed started")
	for {
		select {
		case <-f.done:
			slog.Info("dashboard feed shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				slog.Info("dashboard feed channel closed")
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("failed to marshal turn event", "error", err)
				continue
			}

			f.mu.Lock()
			conns := make(map[int64]*websocket.Conn, len(f.conns))
			for id, c := range f.conns {
				conns[id] = c
			}
			f.mu.Unlock()

			for id, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					slog.Debug("dropping dashboard client", "conn_id", id, "error", err)
					f.remove(id)
					_ = conn.Close(websocket.StatusNormalClosure, "write failed")
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the client
// disconnects.
func (f *DashboardFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS middleware gates the origin upstream
	})
	if err != nil {
		slog.Warn("dashboard websocket accept failed", "error", err)
		return
	}

	id := f.add(ws)
	slog.Info("dashboard client connected", "conn_id", id)

	defer func() {
		f.remove(id)
		_ = ws.Close(websocket.StatusNormalClosure, "feed closed")
		slog.Info("dashboard client disconnected", "conn_id", id)
	}()

	// Reads are only used to detect disconnects; clients don't send data.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			return
		}
	}
}

// Close stops the broadcast loop and disconnects all clients.
func (f *DashboardFeed) Close() {
	close(f.done)
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, conn := range f.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(f.conns, id)
	}
}

func (f *DashboardFeed) add(conn *websocket.Conn) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.conns[id] = conn
	return id
}

func (f *DashboardFeed) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
}
