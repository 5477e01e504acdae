package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsSendBufferSize = 64
)

// Notifier fans intent updates out to websocket subscribers
type Notifier struct {
	upgrader    websocket.Upgrader
	subscribers map[*subscriber]struct{}
	closed      bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

type subscriber struct {
	conn     *websocket.Conn
	intentID string
	send     chan models.IntentUpdate
	done     chan struct{}
	once     sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *subscriber) wants(update models.IntentUpdate) bool {
	return s.intentID == "" || s.intentID == update.IntentID
}

func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.With().Str(logging.FieldModule, "notifier").Logger(),
	}
}

// Publish delivers an update to every matching subscriber. Slow subscribers are dropped.
func (n *Notifier) Publish(update models.IntentUpdate) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for sub := range n.subscribers {
		if !sub.wants(update) {
			continue
		}

		select {
		case sub.send <- update:
		default:
			n.logger.Warn().Str(logging.FieldIntent, update.IntentID).Msg("Subscriber too slow, disconnecting")
			sub.close()
		}
	}
}

// SubscriberCount returns the number of connected subscribers
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}

// ServeWS upgrades the request and streams updates until the client goes away.
// An empty intentID subscribes to every intent.
func (n *Notifier) ServeWS(w http.ResponseWriter, r *http.Request, intentID string) error {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "websocket upgrade failed")
	}

	sub := &subscriber{
		conn:     conn,
		intentID: intentID,
		send:     make(chan models.IntentUpdate, wsSendBufferSize),
		done:     make(chan struct{}),
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = conn.Close()
		return errors.New("notifier is shut down")
	}
	n.subscribers[sub] = struct{}{}
	n.wg.Add(2)
	n.mu.Unlock()

	n.logger.Debug().Str(logging.FieldIntent, intentID).Msg("Subscriber connected")

	go n.readPump(sub)
	go n.writePump(sub)

	return nil
}

func (n *Notifier) remove(sub *subscriber) {
	n.mu.Lock()
	delete(n.subscribers, sub)
	n.mu.Unlock()

	sub.close()
}

// readPump only processes control frames. Client messages are discarded.
func (n *Notifier) readPump(sub *subscriber) {
	defer n.wg.Done()
	defer n.remove(sub)

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				n.logger.Debug().Err(err).Msg("Subscriber read failed")
			}
			return
		}
	}
}

func (n *Notifier) writePump(sub *subscriber) {
	ticker := time.NewTicker(wsPingPeriod)

	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
		n.wg.Done()
	}()

	for {
		select {
		case <-sub.done:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = sub.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case update := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteJSON(update); err != nil {
				sub.close()
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}
		}
	}
}

// Shutdown disconnects every subscriber and waits for their goroutines
func (n *Notifier) Shutdown(timeout time.Duration) error {
	n.mu.Lock()
	n.closed = true
	for sub := range n.subscribers {
		sub.close()
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.Errorf("notifier shutdown timed out after %v", timeout)
	}
}
