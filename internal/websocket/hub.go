package websocket

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"tradedesk/internal/models"
)

// json - быстрый кодек для сериализации сообщений
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBufferPool переиспользует буферы сериализации между Broadcast'ами
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// envelope - сериализованное сообщение с адресатом.
// Пустой userID означает рассылку всем клиентам.
type envelope struct {
	userID string
	data   []byte
}

// Hub управляет всеми активными WebSocket соединениями.
//
// События маршрутизируются по пользователю: клиент при подключении
// привязывается к identity из заголовка, и получает только свои
// ордера и балансы. Hub реализует trading.Broadcaster.
//
// Использование:
//  1. hub := NewHub()
//  2. go hub.Run()
//  3. hub.BroadcastOrderUpdate(order)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	stopOnce sync.Once
	dropped  atomic.Int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client connected (user %s), total %d", client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client disconnected, total %d", total)

		case msg := <-h.broadcast:
			// Копируем адресатов под коротким RLock, отправляем без блокировки
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				if msg.userID == "" || client.userID == msg.userID {
					targets = append(targets, client)
				}
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range targets {
				select {
				case client.send <- msg.data:
				default:
					// Клиент не успевает читать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("ws removed %d slow clients", len(toRemove))
			}
		}
	}
}

// Stop останавливает цикл Run и закрывает все соединения
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast сериализует сообщение и отправляет его клиентам пользователя.
// Пустой userID рассылает всем. Не блокирует: при переполнении
// канала сообщение отбрасывается.
func (h *Hub) Broadcast(userID string, message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("ws marshal error: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копия: буфер вернется в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(userID, msgCopy)
}

// BroadcastRaw отправляет уже сериализованное сообщение
func (h *Hub) BroadcastRaw(userID string, data []byte) {
	select {
	case h.broadcast <- envelope{userID: userID, data: data}:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastOrderUpdate отправляет изменение статуса ордера его владельцу
func (h *Hub) BroadcastOrderUpdate(order *models.Order) {
	h.Broadcast(order.UserID, NewOrderUpdateMessage(order))
}

// BroadcastBalanceSync отправляет событие завершенной сверки балансов
func (h *Hub) BroadcastBalanceSync(userID string, connectionID, currencies int) {
	h.Broadcast(userID, NewBalanceSyncMessage(connectionID, currencies))
}

// BroadcastConnectionStatus отправляет изменение статуса подключения
func (h *Hub) BroadcastConnectionStatus(userID string, connectionID int, status, lastError string) {
	h.Broadcast(userID, NewConnectionStatusMessage(connectionID, status, lastError))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
