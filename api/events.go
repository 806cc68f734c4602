package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vocdoni/skillrating/log"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// subscribeMemberEvents streams every new member of any round as JSON
// messages over a websocket, until the client goes away.
// GET /events/subscribe
func (a *API) subscribeMemberEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel, err := a.engine.SubscribeMemberEvents()
	if err != nil {
		httpWriteError(w, err)
		return
	}
	defer cancel()
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugw("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	// the client is not expected to send anything, reading only detects
	// when it goes away
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-readErr:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debugw("websocket write failed", "error", err.Error())
				return
			}
		}
	}
}
