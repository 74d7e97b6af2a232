package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"loan-dash/internal/domain"
	"loan-dash/internal/metrics"
)

// IdentityProvider es lo que la máquina consume del proveedor de identidad.
type IdentityProvider interface {
	GetSession(ctx context.Context) (*domain.IdentitySession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.IdentitySession, error)
	SignOut(ctx context.Context) error
	// RevokeSession invalida una sesión concreta sin emitir eventos.
	RevokeSession(ctx context.Context, session *domain.IdentitySession) error
	OnAuthStateChange(fn func(domain.AuthEvent)) func()
}

type ProfileLoader interface {
	LoadProfile(ctx context.Context, identityID, email string) (domain.Profile, error)
}

type SettingsProvider interface {
	AutoLogoutTimeoutMinutes(ctx context.Context) int
}

const (
	logoutReasonUser    = "user"
	logoutReasonExpired = "expired"
	logoutReasonForced  = "forced"
)

type Option func(*Machine)

func WithClock(clock Clock) Option {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithMetrics(metrics *metrics.Session) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// Machine es la única fuente de verdad del estado de autenticación de un cliente.
//
// Toda operación asincrónica captura la generación vigente al empezar y solo
// aplica su resultado si la máquina sigue viva y nadie la incremento después
// (un Login más nuevo, un Logout o Teardown).
type Machine struct {
	logger   *zap.Logger
	identity IdentityProvider
	profiles ProfileLoader
	settings SettingsProvider
	clock    Clock
	metrics  *metrics.Session
	timers   *TimerEngine
	activity *ActivityTracker

	mu          sync.Mutex
	state       domain.AuthState
	alive       bool
	initialized bool
	gen         uint64
	pending     string
	updatedAt   time.Time
	stopEvents  func()
	nextSubID   int
	subscribers map[int]chan domain.AuthState
}

func NewMachine(
	logger *zap.Logger,
	identity IdentityProvider,
	profiles ProfileLoader,
	settings SettingsProvider,
	opts ...Option,
) *Machine {
	m := &Machine{
		logger:      logger,
		identity:    identity,
		profiles:    profiles,
		settings:    settings,
		clock:       RealClock{},
		state:       domain.AuthState{Status: domain.StatusUninitialized},
		alive:       true,
		subscribers: make(map[int]chan domain.AuthState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timers = NewTimerEngine(m.clock, DefaultTimeoutMinutes, m.handleWarning, m.handleExpire)
	m.activity = NewActivityTracker(m.clock)
	m.updatedAt = m.clock.Now()
	return m
}

// DefaultTimeoutMinutes se usa hasta que el settings store responde.
const DefaultTimeoutMinutes = 30

// Initialize recupera una sesión existente. Nunca falla: cualquier error termina en Unauthenticated.
func (m *Machine) Initialize(ctx context.Context) {
	m.mu.Lock()
	if !m.alive || m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.gen++
	gen := m.gen
	m.pending = ""
	m.setStateLocked(nil, true, false)
	m.mu.Unlock()

	stop := m.identity.OnAuthStateChange(m.handleAuthEvent)
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		stop()
		return
	}
	m.stopEvents = stop
	m.mu.Unlock()

	if m.settings != nil {
		m.timers.SetTimeoutMinutes(m.settings.AutoLogoutTimeoutMinutes(ctx))
	}

	session, err := m.identity.GetSession(ctx)
	if err != nil {
		m.logger.Warn("restore identity session failed", zap.Error(err))
		m.metrics.BootstrapError("session")
		m.finish(gen, nil)
		return
	}
	if session == nil {
		m.finish(gen, nil)
		return
	}
	m.markPending(gen, session.SubjectID)

	profile, err := m.profiles.LoadProfile(ctx, session.SubjectID, session.Email)
	if err != nil {
		m.logger.Error("load profile on bootstrap failed", zap.Error(err), zap.String("user_id", session.SubjectID))
		m.metrics.BootstrapError("profile")
		m.revoke(ctx, session)
		m.finish(gen, nil)
		return
	}
	if !m.finish(gen, &profile) {
		m.revoke(ctx, session)
	}
}

// Login devuelve false ante credenciales inválidas, fallas de perfil o si otra operación la reemplazó.
func (m *Machine) Login(ctx context.Context, email, password string) bool {
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return false
	}
	m.gen++
	gen := m.gen
	m.pending = ""
	m.timers.Cancel()
	m.setStateLocked(nil, true, false)
	m.mu.Unlock()

	session, err := m.identity.SignInWithPassword(ctx, email, password)
	if err != nil || session == nil {
		if !m.isCurrent(gen) {
			m.metrics.Login("superseded")
			return false
		}
		m.logger.Info("login rejected", zap.Error(err))
		m.metrics.Login("rejected")
		m.finish(gen, nil)
		return false
	}
	m.markPending(gen, session.SubjectID)

	profile, err := m.profiles.LoadProfile(ctx, session.SubjectID, session.Email)
	if err != nil {
		m.logger.Error("load profile after sign-in failed", zap.Error(err), zap.String("user_id", session.SubjectID))
		m.metrics.Login("profile_error")
		m.revoke(ctx, session)
		m.finish(gen, nil)
		return false
	}

	// Reemplazada por otro Login, Logout, Teardown o un signed_out: la sesión obtenida aquí no respalda a nadie.
	if !m.finish(gen, &profile) {
		m.revoke(ctx, session)
		m.metrics.Login("superseded")
		return false
	}
	m.metrics.Login("success")
	return true
}

// Logout es idempotente. El estado local se limpia antes de hablar con el proveedor.
func (m *Machine) Logout(ctx context.Context) {
	m.mu.Lock()
	signOut := m.beginLogoutLocked(logoutReasonUser)
	m.mu.Unlock()
	if signOut {
		m.signOut(ctx)
	}
}

// ExtendSession limpia el aviso y rearma desde ahora. No hace nada sin usuario.
func (m *Machine) ExtendSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() {
		return
	}
	if m.state.ShowSessionWarning {
		m.metrics.Extension()
	}
	m.armLocked()
	m.setStateLocked(m.state.User, false, false)
}

// ResetInactivityTimer afirma que el usuario está presente. Mientras el aviso esta
// visible no hace nada: solo ExtendSession o Logout lo resuelven.
func (m *Machine) ResetInactivityTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() || m.state.ShowSessionWarning {
		return
	}
	m.armLocked()
}

// RecordActivity recibe un evento de interacción del cliente.
func (m *Machine) RecordActivity(kind ActivityKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() || m.state.ShowSessionWarning {
		return
	}
	if m.activity.Record(kind) {
		m.armLocked()
	}
}

// SetVisibility: oculta, la actividad deja de rearmar pero los timers siguen corriendo;
// visible de nuevo con usuario, se rearma desde ahora.
func (m *Machine) SetVisibility(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	becameVisible := m.activity.SetVisible(visible)
	if !becameVisible || !m.authenticatedLocked() {
		return
	}
	m.armLocked()
	m.setStateLocked(m.state.User, false, false)
}

// State devuelve una copia del estado observable.
func (m *Machine) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

// Subscribe entrega el estado actual y cada cambio posterior. El canal se cierra en Teardown o al cancelar.
func (m *Machine) Subscribe() (<-chan domain.AuthState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan domain.AuthState, 8)
	if !m.alive {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	ch <- copyState(m.state)

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
}

// Teardown desmonta la máquina: ningún resultado posterior modifica el estado.
func (m *Machine) Teardown() {
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return
	}
	m.alive = false
	m.gen++
	m.timers.Cancel()
	stop := m.stopEvents
	m.stopEvents = nil
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if closer, ok := m.identity.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (m *Machine) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// UpdatedAt es el momento del último cambio de estado observable.
func (m *Machine) UpdatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedAt
}

// Timers expone el motor para inspección (próximo aviso, expiración).
func (m *Machine) Timers() *TimerEngine {
	return m.timers
}

func (m *Machine) handleWarning(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() || !m.timers.IsCurrent(gen) {
		return
	}
	m.metrics.Warning()
	m.setStateLocked(m.state.User, false, true)
}

func (m *Machine) handleExpire(gen uint64) {
	m.mu.Lock()
	if !m.authenticatedLocked() || !m.timers.IsCurrent(gen) {
		m.mu.Unlock()
		return
	}
	signOut := m.beginLogoutLocked(logoutReasonExpired)
	m.mu.Unlock()

	if signOut {
		m.logger.Info("session expired by inactivity")
		m.signOut(context.Background())
	}
}

// handleAuthEvent solo reacciona a signed_out; signed_in ya lo maneja Login.
// Durante la carga del perfil el evento también aplica: el Login en curso queda reemplazado.
func (m *Machine) handleAuthEvent(event domain.AuthEvent) {
	if event.Type != domain.AuthEventSignedOut {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var subject string
	switch {
	case m.authenticatedLocked():
		subject = m.state.User.ID
	case m.alive && m.state.IsLoading && m.pending != "":
		subject = m.pending
	default:
		return
	}
	if event.SubjectID != "" && event.SubjectID != subject {
		return
	}
	m.gen++
	m.pending = ""
	m.timers.Cancel()
	m.metrics.Logout(logoutReasonForced)
	m.setStateLocked(nil, false, false)
}

// finish aplica el resultado de Initialize/Login si gen sigue vigente.
func (m *Machine) finish(gen uint64, profile *domain.Profile) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive || gen != m.gen {
		return false
	}
	m.pending = ""
	if profile == nil {
		m.timers.Cancel()
		m.setStateLocked(nil, false, false)
		return true
	}
	m.armLocked()
	m.setStateLocked(profile, false, false)
	return true
}

// revoke invalida la sesión que obtuvo esta operación para que no quede identidad sin perfil.
// Si el proveedor ya tiene otra sesión actual, esa no se toca.
func (m *Machine) revoke(ctx context.Context, session *domain.IdentitySession) {
	if err := m.identity.RevokeSession(context.WithoutCancel(ctx), session); err != nil {
		m.logger.Warn("compensating sign-out failed", zap.Error(err))
	}
}

// markPending registra el sujeto cuyo perfil se está cargando.
func (m *Machine) markPending(gen uint64, subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alive && gen == m.gen {
		m.pending = subjectID
	}
}

func (m *Machine) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive && gen == m.gen
}

// beginLogoutLocked cancela timers y limpia el estado de forma sincrónica.
// Devuelve true si corresponde avisar al proveedor.
func (m *Machine) beginLogoutLocked(reason string) bool {
	if !m.alive {
		return false
	}
	if m.state.User == nil && !m.state.IsLoading && m.state.Status == domain.StatusUnauthenticated {
		return false
	}
	m.gen++
	m.pending = ""
	m.timers.Cancel()
	m.metrics.Logout(reason)
	m.setStateLocked(nil, false, false)
	return true
}

// signOut no hereda la cancelación del request: si el cliente se desconecta el refresh igual se revoca.
func (m *Machine) signOut(ctx context.Context) {
	if err := m.identity.SignOut(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("identity sign-out failed, local state already cleared", zap.Error(err))
	}
}

func (m *Machine) authenticatedLocked() bool {
	return m.alive && m.state.User != nil
}

func (m *Machine) armLocked() {
	m.timers.Arm()
	m.activity.Touch()
}

func (m *Machine) setStateLocked(user *domain.Profile, loading, warning bool) {
	next := domain.AuthState{
		User:               user,
		IsLoading:          loading,
		ShowSessionWarning: warning && user != nil,
	}
	switch {
	case loading:
		next.Status = domain.StatusInitializing
	case user == nil:
		next.Status = domain.StatusUnauthenticated
	case next.ShowSessionWarning:
		next.Status = domain.StatusWarning
	default:
		next.Status = domain.StatusActive
	}
	if sameState(m.state, next) {
		return
	}
	m.state = next
	m.updatedAt = m.clock.Now()
	m.publishLocked()
}

// publishLocked nunca bloquea: si un suscriptor está atrasado se descarta su valor más viejo.
func (m *Machine) publishLocked() {
	snapshot := copyState(m.state)
	for _, ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func sameState(a, b domain.AuthState) bool {
	if a.IsLoading != b.IsLoading || a.ShowSessionWarning != b.ShowSessionWarning || a.Status != b.Status {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == b.User
	}
	return a.User == b.User || *a.User == *b.User
}

func copyState(s domain.AuthState) domain.AuthState {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
