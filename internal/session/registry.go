package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loan-dash/internal/domain"
	"loan-dash/internal/metrics"
)

// MachineFactory construye la máquina (y su proveedor de identidad) de un cliente nuevo.
type MachineFactory func() *Machine

// Registry mantiene una máquina por cliente conectado.
type Registry struct {
	logger  *zap.Logger
	factory MachineFactory
	metrics *metrics.Session
	ttl     time.Duration
	clock   Clock

	mu       sync.Mutex
	machines map[string]*Machine
	closed   bool
}

func NewRegistry(logger *zap.Logger, factory MachineFactory, ttl time.Duration, m *metrics.Session, clock Clock) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Registry{
		logger:   logger,
		factory:  factory,
		metrics:  m,
		ttl:      ttl,
		clock:    clock,
		machines: make(map[string]*Machine),
	}
}

// NewClientID genera un identificador de cliente nuevo.
func NewClientID() string {
	return uuid.NewString()
}

// Get devuelve la máquina del cliente, creandola e inicializandola si no existe.
func (r *Registry) Get(ctx context.Context, clientID string) (*Machine, bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false
	}
	if m, ok := r.machines[clientID]; ok {
		r.mu.Unlock()
		return m, true
	}
	m := r.factory()
	r.machines[clientID] = m
	r.mu.Unlock()

	r.metrics.MachineAdded()
	m.Initialize(ctx)
	return m, true
}

// Lookup no crea máquinas.
func (r *Registry) Lookup(clientID string) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[clientID]
	return m, ok
}

func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	m, ok := r.machines[clientID]
	delete(r.machines, clientID)
	r.mu.Unlock()

	if ok {
		m.Teardown()
		r.metrics.MachineRemoved()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Sweep desmonta las máquinas sin usuario que no cambiaron en ttl. Devuelve cuántas quitó.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.ttl)
	var stale []string

	r.mu.Lock()
	for id, m := range r.machines {
		st := m.State()
		if st.User == nil && !st.IsLoading && m.UpdatedAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Remove(id)
	}
	if len(stale) > 0 {
		r.logger.Info("swept idle session machines", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run barre periódicamente hasta que ctx se cancela.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close desmonta todas las máquinas; Get deja de crear nuevas.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	machines := r.machines
	r.machines = make(map[string]*Machine)
	r.mu.Unlock()

	for range machines {
		r.metrics.MachineRemoved()
	}
	for _, m := range machines {
		m.Teardown()
	}
}

// Snapshot es util para diagnostico: estado por cliente.
func (r *Registry) Snapshot() map[string]domain.AuthState {
	r.mu.Lock()
	machines := make(map[string]*Machine, len(r.machines))
	for id, m := range r.machines {
		machines[id] = m
	}
	r.mu.Unlock()

	out := make(map[string]domain.AuthState, len(machines))
	for id, m := range machines {
		out[id] = m.State()
	}
	return out
}
