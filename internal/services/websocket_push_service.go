package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"raffle-backend/internal/dto"
	"raffle-backend/internal/events"
	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the CORS layer
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Connection information
type Connection struct {
	ID       string          `json:"id"`
	Address  string          `json:"address"` // lowercase filter, empty receives every event
	Conn     *websocket.Conn `json:"-"`
	Send     chan []byte     `json:"-"`
	LastPing time.Time       `json:"last_ping"`
}

// PushMessage envelope sent to clients
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Data      interface{} `json:"data"`
}

// EventPushService streams raffle events to websocket clients
type EventPushService struct {
	connections map[string]*Connection
	hub         chan dto.RaffleEventMessage
	register    chan *Connection
	unregister  chan *Connection
	done        chan struct{}
	mutex       sync.RWMutex
}

// NewEventPushService creates the push service; call Run to start the hub
func NewEventPushService() *EventPushService {
	return &EventPushService{
		connections: make(map[string]*Connection),
		hub:         make(chan dto.RaffleEventMessage, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Run drives the hub and forwards events from sub until ctx is done
func (s *EventPushService) Run(ctx context.Context, sub *events.Subscription) {
	go sub.Dispatch(ctx, func(evt raffle.Event) {
		select {
		case s.hub <- events.ToMessage(evt):
		default:
			log.Printf("⚠️ [WebSocketpush] Hub full, dropping %s event", evt.Name)
		}
	})

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			close(s.done)
			return
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		}
	}
}

func (s *EventPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	s.connections[conn.ID] = conn
	total := len(s.connections)
	s.mutex.Unlock()

	metrics.WebSocketConnections.Set(float64(total))
	log.Printf("📱 WebSocket connection registered: connID=%s, filter=%q", conn.ID, conn.Address)

	s.sendToConnection(conn, PushMessage{
		Type:      "connection_established",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.New().String(),
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"address":       conn.Address,
		},
	})
}

func (s *EventPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	if _, ok := s.connections[conn.ID]; !ok {
		s.mutex.Unlock()
		return
	}
	delete(s.connections, conn.ID)
	total := len(s.connections)
	s.mutex.Unlock()

	close(conn.Send)
	metrics.WebSocketConnections.Set(float64(total))
	log.Printf("📱 WebSocket connection unregistered: connID=%s", conn.ID)
}

func (s *EventPushService) closeAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, conn := range s.connections {
		delete(s.connections, id)
		close(conn.Send)
	}
	metrics.WebSocketConnections.Set(0)
}

func (s *EventPushService) handleBroadcast(event dto.RaffleEventMessage) {
	message := PushMessage{
		Type:      "raffle_event",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.New().String(),
		Data:      event,
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message: %v", err)
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sent, failed := 0, 0
	for _, conn := range s.connections {
		if !matchesFilter(conn.Address, event) {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			failed++
			log.Printf("⚠️ [WebSocketpush] Failed to send to connection: %s (channel full)", conn.ID)
		}
	}
	if sent+failed > 0 {
		log.Printf("📤 [WebSocketpush] %s delivered: sent=%d, failed=%d", event.Event, sent, failed)
	}
}

func matchesFilter(address string, event dto.RaffleEventMessage) bool {
	if address == "" {
		return true
	}
	return strings.EqualFold(address, event.Participant) ||
		strings.EqualFold(address, event.Winner) ||
		strings.EqualFold(address, event.Raffle)
}

func (s *EventPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Printf("⚠️ Failed to send to connection: %s", conn.ID)
	}
}

// GetActiveConnections number of registered connections
func (s *EventPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// HandleWebSocket upgrades the request and streams events matching address
func (s *EventPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, address string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	connection := &Connection{
		ID:       uuid.New().String(),
		Address:  strings.ToLower(address),
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		LastPing: time.Now(),
	}

	select {
	case s.register <- connection:
	case <-s.done:
		conn.Close()
		return
	}

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *EventPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write message failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		select {
		case s.unregister <- conn:
		case <-s.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			break
		}
	}
}
