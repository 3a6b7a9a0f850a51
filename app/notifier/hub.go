package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 8
)

type subscriber struct {
	reference string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub keeps websocket subscribers grouped by payment reference.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

func NewHub() *Hub {
	return &Hub{
		subs: map[string]map[*subscriber]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: factory.NewModuleLogger("notifier-hub"),
	}
}

// Dispatch pushes an update to every subscriber of its reference. Slow
// subscribers drop the update; they re-check state on reconnect.
func (h *Hub) Dispatch(update PaymentUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.WithError(err).Error("Marshal payment update failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[update.Reference] {
		select {
		case sub.send <- payload:
		default:
			h.logger.WithField("reference", update.Reference).Warn("Subscriber send buffer full")
		}
	}
}

func (h *Hub) Subscribers(reference string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[reference])
}

// Serve upgrades the request and streams updates for reference until the
// client goes away. current, when set, is read once the subscriber is
// registered, so no update published around the upgrade is missed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, reference string, current func() (*PaymentUpdate, error)) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{
		reference: reference,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
	h.register(sub)

	if current != nil {
		h.sendCurrent(sub, current)
	}

	go h.writePump(sub)
	h.readPump(sub)
	return nil
}

func (h *Hub) sendCurrent(sub *subscriber, current func() (*PaymentUpdate, error)) {
	state, err := current()
	if err != nil {
		h.logger.WithError(err).WithField("reference", sub.reference).Warn("Load current payment state failed")
		return
	}
	if state == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		h.logger.WithError(err).Error("Marshal payment update failed")
		return
	}
	select {
	case sub.send <- payload:
	default:
	}
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.reference]
	if !ok {
		set = map[*subscriber]struct{}{}
		h.subs[sub.reference] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.reference]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.send)
	if len(set) == 0 {
		delete(h.subs, sub.reference)
	}
}

// readPump only drains control frames; clients never send data.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.unregister(sub)
		_ = sub.conn.Close()
	}()

	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("reference", sub.reference).Debug("Websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
