package observer

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Параметры heartbeat: ping каждые 30 секунд, два пропуска — закрытие.
const (
	pingPeriod = 30 * time.Second
	pongWait   = 2*pingPeriod + 5*time.Second
	writeWait  = 10 * time.Second

	maxInboundMessage = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Авторизация и происхождение проверяются выше по стеку.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client — одно WebSocket-подключение подписчика.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	lagged bool
}

// clientCommand — входящее сообщение подписчика.
type clientCommand struct {
	Action string `json:"action"` // join | leave
	Room   string `json:"room"`
}

// ServeWS апгрейдит HTTP-запрос и регистрирует подписчика.
//
// Комнаты задаются query-параметром rooms (через запятую) и могут
// меняться сообщениями {"action":"join","room":"workflow:<id>"}.
// Без параметра подписчик попадает в global.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, h.cfg.ObserverQueueSize),
		rooms: parseRooms(r.URL.Query().Get("rooms")),
	}

	h.register(client)

	// Приветствие: подписчик знает, что соединение живо и с какими комнатами.
	if hello, err := json.Marshal(domain.NotificationEvent{
		Type:    domain.EventHello,
		Payload: map[string]any{"rooms": client.roomList()},
		At:      time.Now().UTC(),
	}); err == nil {
		client.send <- hello
	}

	go client.writePump(h)
	go client.readPump(h)
}

// parseRooms разбирает список комнат из query-параметра.
func parseRooms(raw string) map[string]bool {
	rooms := make(map[string]bool)
	for _, room := range strings.Split(raw, ",") {
		room = strings.TrimSpace(room)
		if room != "" {
			rooms[room] = true
		}
	}
	if len(rooms) == 0 {
		rooms[RoomGlobal] = true
	}
	return rooms
}

// inAnyRoom проверяет членство хотя бы в одной из комнат.
func (c *Client) inAnyRoom(rooms []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, room := range rooms {
		if c.rooms[room] {
			return true
		}
	}
	return false
}

// roomList возвращает комнаты подписчика.
func (c *Client) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// markLagged помечает эпизод отставания.
// Возвращает true, если подписчик уже был помечен.
func (c *Client) markLagged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.lagged
	c.lagged = true
	return was
}

// clearLagged сбрасывает отметку отставания после успешной отправки.
func (c *Client) clearLagged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lagged = false
}

// join добавляет комнату.
func (c *Client) join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

// leave убирает комнату.
func (c *Client) leave(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// writePump гонит очередь событий и heartbeat в соединение.
func (c *Client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				h.unregister(c)
				return
			}
			c.clearLagged()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump принимает команды подписчика и следит за pong.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "join":
			if cmd.Room != "" {
				c.join(cmd.Room)
			}
		case "leave":
			c.leave(cmd.Room)
		}
	}
}
