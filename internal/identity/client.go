package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"loan-dash/internal/domain"
)

// Client guarda la sesión de identidad de un solo cliente (lo que en el navegador seria el storage)
// y expone las operaciones que consume la máquina de sesión.
type Client struct {
	svc       *Service
	mu        sync.Mutex
	current   *domain.IdentitySession
	attempt   uint64
	closed    bool
	listeners *MemoryEventBus
	stopBus   func()
}

// ErrSignInSuperseded: un sign-in más nuevo, un SignOut o Close llegaron antes de que este terminara.
var ErrSignInSuperseded = errors.New("sign-in superseded")

func NewClient(svc *Service) *Client {
	c := &Client{
		svc:       svc,
		listeners: NewMemoryEventBus(),
	}
	c.stopBus = svc.Events().Subscribe(c.handleBusEvent)
	return c
}

func (c *Client) GetSession(ctx context.Context) (*domain.IdentitySession, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return nil, nil
	}

	session, err := c.svc.Validate(ctx, current)
	if err != nil {
		if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) {
			c.replace(current, nil)
			return nil, nil
		}
		return nil, err
	}
	c.replace(current, session)
	return session, nil
}

// SignInWithPassword solo instala la sesión si es el intento más reciente del cliente.
// Un intento viejo revoca la sesión que obtuvo y devuelve ErrSignInSuperseded.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.IdentitySession, error) {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	session, err := c.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if attempt != c.attempt || c.closed {
		c.mu.Unlock()
		if err := c.svc.SignOut(context.WithoutCancel(ctx), session); err != nil {
			c.svc.logger.Warn("revoke superseded sign-in failed", zap.Error(err))
		}
		return nil, ErrSignInSuperseded
	}
	previous := c.current
	c.current = session
	c.mu.Unlock()

	// La sesión anterior del mismo cliente queda huerfana: se revoca sin emitir evento.
	if previous != nil {
		_ = c.svc.SignOut(ctx, previous)
	}

	c.listeners.dispatch(domain.AuthEvent{
		Type:      domain.AuthEventSignedIn,
		SubjectID: session.SubjectID,
		At:        time.Now().UTC(),
	})
	return session, nil
}

// SignOut limpia la sesión local siempre; el error remoto se devuelve igual.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.attempt++
	c.mu.Unlock()
	if current == nil {
		return nil
	}

	err := c.svc.SignOut(ctx, current)
	c.listeners.dispatch(domain.AuthEvent{
		Type:      domain.AuthEventSignedOut,
		SubjectID: current.SubjectID,
		At:        time.Now().UTC(),
	})
	return err
}

// RevokeSession revoca una sesión puntual sin emitir eventos. Solo se olvida si sigue siendo la actual.
func (c *Client) RevokeSession(ctx context.Context, session *domain.IdentitySession) error {
	if session == nil {
		return nil
	}
	c.mu.Lock()
	if c.current == session {
		c.current = nil
	}
	c.mu.Unlock()
	return c.svc.SignOut(ctx, session)
}

func (c *Client) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	return c.listeners.Subscribe(fn)
}

// Close suelta la suscripción al bus del proveedor.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.attempt++
	c.mu.Unlock()
	if c.stopBus != nil {
		c.stopBus()
	}
}

func (c *Client) handleBusEvent(event domain.AuthEvent) {
	if event.Type != domain.AuthEventSignedOut {
		return
	}
	c.mu.Lock()
	current := c.current
	if current == nil || current.SubjectID != event.SubjectID {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	c.listeners.dispatch(event)
}

// replace solo pisa la sesión si nadie la cambió mientras validábamos.
func (c *Client) replace(expected, next *domain.IdentitySession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == expected {
		c.current = next
	}
}
