package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"loan-dash/internal/domain"
	"loan-dash/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrNoSession          = errors.New("no identity session")
)

// Service es el proveedor de identidad: valida credenciales y emite sesiones.
type Service struct {
	logger   *zap.Logger
	accounts repository.IdentityAccountRepository
	tokens   *TokenIssuer
	bus      EventBus
	now      func() time.Time
}

func NewService(logger *zap.Logger, accounts repository.IdentityAccountRepository, tokens *TokenIssuer, bus EventBus) *Service {
	if bus == nil {
		bus = NewMemoryEventBus()
	}
	return &Service{
		logger:   logger,
		accounts: accounts,
		tokens:   tokens,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Events expone el bus para que los clientes se suscriban.
func (s *Service) Events() EventBus {
	return s.bus
}

// Register crea una cuenta de identidad con password hasheado.
func (s *Service) Register(ctx context.Context, emailAddr, password string) (domain.IdentityAccount, error) {
	if s.accounts == nil {
		return domain.IdentityAccount{}, errors.New("identity service not configured")
	}
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return domain.IdentityAccount{}, ErrInvalidEmail
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return domain.IdentityAccount{}, ErrInvalidCredentials
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.IdentityAccount{}, err
	}
	account := domain.IdentityAccount{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		CreatedAt:    s.now(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.IdentityAccount{}, err
	}
	return account, nil
}

func (s *Service) SignInWithPassword(ctx context.Context, emailAddr, password string) (*domain.IdentitySession, error) {
	if s.accounts == nil || s.tokens == nil {
		return nil, errors.New("identity service not configured")
	}
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	pair, err := s.tokens.GeneratePair(ctx, account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	return sessionFromPair(account.ID, account.Email, pair), nil
}

// Validate devuelve la sesión si el access token sigue vivo; si expiró intenta rotar el refresh.
func (s *Service) Validate(ctx context.Context, session *domain.IdentitySession) (*domain.IdentitySession, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	if !session.Expired(s.now()) {
		claims, err := s.tokens.ParseAccessToken(ctx, session.AccessToken)
		if err == nil {
			return sessionFromClaims(claims, session), nil
		}
		if !errors.Is(err, ErrJWTExpired) {
			return nil, err
		}
	}
	pair, err := s.tokens.RefreshPair(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}
	return sessionFromPair(session.SubjectID, session.Email, pair), nil
}

// SignOut revoca la sesión actual. Los tokens vencidos o inválidos no son error.
func (s *Service) SignOut(ctx context.Context, session *domain.IdentitySession) error {
	if session == nil {
		return nil
	}
	err := s.tokens.RevokeRefresh(ctx, session.RefreshToken)
	if errors.Is(err, ErrJWTInvalid) {
		return nil
	}
	return err
}

// ForceSignOut revoca todas las sesiones del usuario y avisa a los clientes conectados.
func (s *Service) ForceSignOut(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		return err
	}
	event := domain.AuthEvent{
		Type:      domain.AuthEventSignedOut,
		SubjectID: userID,
		At:        s.now(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("publish forced sign-out failed", zap.Error(err), zap.String("user_id", userID))
		return err
	}
	return nil
}

func sessionFromPair(subjectID, email string, pair TokenPair) *domain.IdentitySession {
	return &domain.IdentitySession{
		SubjectID:    subjectID,
		Email:        email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}
}

func sessionFromClaims(claims Claims, prev *domain.IdentitySession) *domain.IdentitySession {
	out := *prev
	out.SubjectID = claims.UserID
	out.Email = claims.Email
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return &out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
