package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/utils"
)

var (
	ErrInvalidLogin = apperr.New(apperr.CodeAuthInvalidLogin, "invalid credentials")
	ErrTokenRevoked = apperr.New(apperr.CodeUnauthenticated, "session has ended")
)

// Revoker remembers ended sessions. *repository.RedisRepository implements it.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevoker is a process-local Revoker used when redis is not configured.
type MemoryRevoker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevoker creates an empty MemoryRevoker.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, until := range m.entries {
		if now.After(until) {
			delete(m.entries, id)
		}
	}
	m.entries[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[tokenID]
	return ok && m.now().Before(until), nil
}

// Session is an issued token and the identity it carries.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}

// SessionConfig holds the secrets SessionService checks against.
type SessionConfig struct {
	Secret            string
	TTL               time.Duration
	AdminEmail        string
	AdminPasswordHash string
	DriverCodeHash    string
}

// SessionService issues, resumes and ends sessions.
type SessionService struct {
	cfg     SessionConfig
	revoker Revoker
	logger  *zap.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(cfg SessionConfig, revoker Revoker, logger *zap.Logger) *SessionService {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &SessionService{cfg: cfg, revoker: revoker, logger: logger.Named("session")}
}

// Start resumes the session in token when it is valid, otherwise creates an
// anonymous one with a new uid.
func (s *SessionService) Start(ctx context.Context, token string) (*Session, error) {
	if token != "" {
		if id, err := s.Authenticate(ctx, token); err == nil {
			return s.issue(id)
		}
	}
	return s.issue(Identity{UID: uuid.NewString(), Role: RoleCustomer, Anonymous: true})
}

// Authenticate validates token and returns its identity.
func (s *SessionService) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := utils.ParseToken(s.cfg.Secret, token)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.CodeUnauthenticated, err)
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, ErrTokenRevoked
	}
	return Identity{
		UID:       claims.UID,
		Role:      claims.Role,
		Anonymous: claims.Anonymous,
		TokenID:   claims.ID,
	}, nil
}

// Logout ends the session in token and returns a fresh anonymous one.
func (s *SessionService) Logout(ctx context.Context, token string) (*Session, error) {
	claims, err := utils.ParseToken(s.cfg.Secret, token)
	if err == nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
			return nil, err
		}
		s.logger.Debug("session ended", zap.String("uid", claims.UID), zap.String("role", claims.Role))
	}
	return s.issue(Identity{UID: uuid.NewString(), Role: RoleCustomer, Anonymous: true})
}

// AdminLogin checks the configured admin credentials.
func (s *SessionService) AdminLogin(ctx context.Context, email, password string) (*Session, error) {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPasswordHash == "" {
		return nil, ErrInvalidLogin
	}
	if !strings.EqualFold(strings.TrimSpace(email), s.cfg.AdminEmail) ||
		!utils.CheckSecret(s.cfg.AdminPasswordHash, password) {
		s.logger.Info("admin login rejected", zap.String("email", email))
		return nil, ErrInvalidLogin
	}
	return s.issue(Identity{UID: "admin:" + strings.ToLower(s.cfg.AdminEmail), Role: RoleAdmin})
}

// DriverLogin checks the shared driver access code.
func (s *SessionService) DriverLogin(ctx context.Context, code string) (*Session, error) {
	if s.cfg.DriverCodeHash == "" || !utils.CheckSecret(s.cfg.DriverCodeHash, code) {
		return nil, ErrInvalidLogin
	}
	return s.issue(Identity{UID: "driver:" + uuid.NewString(), Role: RoleDriver})
}

func (s *SessionService) issue(id Identity) (*Session, error) {
	token, claims, err := utils.GenerateToken(s.cfg.Secret, id.UID, id.Role, id.Anonymous, s.cfg.TTL)
	if err != nil {
		return nil, err
	}
	id.TokenID = claims.ID
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Identity: id}, nil
}
