package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

// RoomGlobal — комната, получающая все события.
const RoomGlobal = "global"

// Hub маршрутизирует события State Store подписчикам по комнатам.
type Hub struct {
	store   store.Store
	cfg     *config.Config
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

// Config — конфигурация Hub.
type Config struct {
	Store   store.Store
	Cfg     *config.Config
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHub создаёт Hub.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Hub{
		store:   cfg.Store,
		cfg:     cfg.Cfg,
		metrics: metrics,
		logger:  logger,
		clients: make(map[*Client]bool),
	}
}

// Run подписывается на канал событий и раздаёт их подписчикам.
// Блокирует до отмены контекста.
func (h *Hub) Run(ctx context.Context) error {
	events, stop, err := h.store.Subscribe(ctx, store.ChannelEvents)
	if err != nil {
		return err
	}
	defer stop()

	h.logger.Info("observer hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case raw, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}

			var event domain.NotificationEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				h.logger.Warn("malformed observer event", "error", err)
				continue
			}
			h.Broadcast(&event)
		}
	}
}

// Broadcast раздаёт событие подписчикам, чьи комнаты совпадают.
func (h *Hub) Broadcast(event *domain.NotificationEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}

	rooms := eventRooms(event)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.inAnyRoom(rooms) {
			h.enqueue(client, body)
		}
	}
}

// enqueue ставит событие в очередь подписчика.
//
// Переполнение: старейшее событие выталкивается, подписчик получает
// маркер lag (один на эпизод отставания) и обязан пересинхронизироваться
// через State Store.
func (h *Hub) enqueue(client *Client, body []byte) {
	select {
	case client.send <- body:
		return
	default:
	}

	// Очередь полна. В первом переполнении эпизода нужно место и под
	// маркер lag, и под новое событие — выталкиваем старейшие.
	firstOverflow := !client.markLagged()
	drops := 1
	if firstOverflow {
		drops = 2
	}
	for i := 0; i < drops; i++ {
		select {
		case <-client.send:
			h.metrics.ObserverDropped.Inc()
		default:
		}
	}

	if firstOverflow {
		if lag := lagMarker(); lag != nil {
			select {
			case client.send <- lag:
			default:
			}
		}
	}

	select {
	case client.send <- body:
	default:
		h.metrics.ObserverDropped.Inc()
	}
}

// lagMarker сериализует событие-маркер потери.
func lagMarker() []byte {
	body, err := json.Marshal(domain.NotificationEvent{
		Type: domain.EventLag,
		At:   time.Now().UTC(),
	})
	if err != nil {
		return nil
	}
	return body
}

// eventRooms возвращает комнаты, которым адресовано событие.
func eventRooms(event *domain.NotificationEvent) []string {
	rooms := []string{RoomGlobal}
	if event.WorkflowID != "" {
		rooms = append(rooms, "workflow:"+event.WorkflowID)
	}
	if scope, ok := event.Payload["recipient_scope"].(string); ok && scope != "" {
		rooms = append(rooms, "user:"+scope)
	}
	return rooms
}

// register добавляет подписчика.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ObserverConnections.Set(float64(count))
	h.logger.Debug("observer connected", "rooms", client.roomList(), "total", count)
}

// unregister убирает подписчика и закрывает его очередь.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ObserverConnections.Set(float64(count))
	h.logger.Debug("observer disconnected", "total", count)
}

// closeAll отключает всех подписчиков.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.metrics.ObserverConnections.Set(0)
}

// ClientCount возвращает количество подписчиков.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
