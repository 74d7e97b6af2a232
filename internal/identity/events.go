package identity

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"loan-dash/internal/domain"
)

// EventBus reparte eventos de autenticación fuera de banda.
type EventBus interface {
	Publish(ctx context.Context, event domain.AuthEvent) error
	// Subscribe registra fn y devuelve la función para desuscribirse.
	Subscribe(fn func(domain.AuthEvent)) func()
}

type MemoryEventBus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(domain.AuthEvent)
}

func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{handlers: make(map[int]func(domain.AuthEvent))}
}

func (b *MemoryEventBus) Publish(_ context.Context, event domain.AuthEvent) error {
	b.dispatch(event)
	return nil
}

func (b *MemoryEventBus) Subscribe(fn func(domain.AuthEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *MemoryEventBus) dispatch(event domain.AuthEvent) {
	b.mu.Lock()
	handlers := make([]func(domain.AuthEvent), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	// Fuera del lock: un handler puede desuscribirse.
	for _, fn := range handlers {
		fn(event)
	}
}

const authEventsChannel = "auth:events"

// RedisEventBus publica en un canal pub/sub para que todas las instancias vean el evento.
type RedisEventBus struct {
	client *redis.Client
	local  *MemoryEventBus
	logger *zap.Logger
}

func NewRedisEventBus(client *redis.Client, logger *zap.Logger) *RedisEventBus {
	return &RedisEventBus{
		client: client,
		local:  NewMemoryEventBus(),
		logger: logger,
	}
}

func (b *RedisEventBus) Publish(ctx context.Context, event domain.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, authEventsChannel, payload).Err()
}

func (b *RedisEventBus) Subscribe(fn func(domain.AuthEvent)) func() {
	return b.local.Subscribe(fn)
}

// Run escucha el canal hasta que ctx se cancela. ready se cierra cuando la suscripción está activa.
func (b *RedisEventBus) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.client.Subscribe(ctx, authEventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event domain.AuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed auth event", zap.Error(err))
				continue
			}
			b.local.dispatch(event)
		}
	}
}
