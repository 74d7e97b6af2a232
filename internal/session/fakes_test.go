package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"loan-dash/internal/domain"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errSuperseded         = errors.New("sign-in superseded")
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance mueve el reloj disparando en orden los timers vencidos. Los callbacks corren sin el lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.stopped = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) nextDueLocked(target time.Time) *fakeTimer {
	var due []*fakeTimer
	pending := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		pending = append(pending, t)
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	c.timers = pending
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// fakeIdentity simula el proveedor. gates bloquea SignInWithPassword de un email hasta cerrar el canal.
// Igual que identity.Client, un sign-in viejo no se instala; lastWriteWins desactiva esa regla.
type fakeIdentity struct {
	mu            sync.Mutex
	current       *domain.IdentitySession
	accounts      map[string]string
	gates         map[string]chan struct{}
	entered       chan string
	handlers      map[int]func(domain.AuthEvent)
	nextID        int
	attempt       int
	lastWriteWins bool
	signOuts      int
	revoked       []string
	signOutCtxErr error
	getErr        error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts: map[string]string{},
		gates:    map[string]chan struct{}{},
		entered:  make(chan string, 32),
		handlers: map[int]func(domain.AuthEvent){},
	}
}

func (f *fakeIdentity) addAccount(email, password string) {
	f.mu.Lock()
	f.accounts[email] = password
	f.mu.Unlock()
}

func (f *fakeIdentity) gate(email string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[email] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeIdentity) setSession(session *domain.IdentitySession) {
	f.mu.Lock()
	f.current = session
	f.mu.Unlock()
}

func (f *fakeIdentity) GetSession(context.Context) (*domain.IdentitySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.current, nil
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*domain.IdentitySession, error) {
	f.mu.Lock()
	gate := f.gates[email]
	f.attempt++
	attempt := f.attempt
	f.mu.Unlock()
	f.entered <- email
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.accounts[email]; !ok || pw != password {
		return nil, errInvalidCredentials
	}
	session := &domain.IdentitySession{SubjectID: "id-" + email, Email: email}
	if !f.lastWriteWins && attempt != f.attempt {
		f.revoked = append(f.revoked, session.SubjectID)
		return nil, errSuperseded
	}
	f.current = session
	return session, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	f.signOutCtxErr = ctx.Err()
	f.attempt++
	f.current = nil
	return nil
}

func (f *fakeIdentity) RevokeSession(ctx context.Context, session *domain.IdentitySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.revoked = append(f.revoked, session.SubjectID)
	if f.current == session {
		f.current = nil
	}
	return nil
}

func (f *fakeIdentity) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) emit(event domain.AuthEvent) {
	f.mu.Lock()
	handlers := make([]func(domain.AuthEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (f *fakeIdentity) signOutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}

func (f *fakeIdentity) revokedSubjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeIdentity) lastSignOutCtxErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCtxErr
}

func (f *fakeIdentity) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeProfiles struct {
	mu      sync.Mutex
	fail    map[string]error
	gates   map[string]chan struct{}
	entered chan string
	calls   int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		fail:    map[string]error{},
		gates:   map[string]chan struct{}{},
		entered: make(chan string, 32),
	}
}

func (p *fakeProfiles) gate(email string) chan struct{} {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gates[email] = ch
	p.mu.Unlock()
	return ch
}

func (p *fakeProfiles) LoadProfile(_ context.Context, identityID, email string) (domain.Profile, error) {
	p.mu.Lock()
	gate := p.gates[email]
	p.mu.Unlock()
	p.entered <- email
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.fail[email]; err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		ID:           identityID,
		Name:         email,
		Email:        email,
		Role:         "Loan Officer",
		InternalRole: domain.RoleUser,
	}, nil
}

type fixedSettings int

func (s fixedSettings) AutoLogoutTimeoutMinutes(context.Context) int {
	return int(s)
}
