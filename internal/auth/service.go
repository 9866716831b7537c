package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"dayboard/internal/model"
	"dayboard/internal/storage"
	logx "dayboard/pkg/logx"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrRegistrationClosed = errors.New("registration is disabled")
	ErrInvalidInput       = errors.New("invalid username or password format")
)

const (
	DefaultCookieName = "dayboard_session"
	DefaultSessionTTL = 30 * 24 * time.Hour

	minPasswordLen = 6
	maxUsernameLen = 64
)

// Store is the persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (model.User, error)
	UserByName(ctx context.Context, username string) (model.User, error)
	UserByID(ctx context.Context, id int64) (model.User, error)
	CreateSession(ctx context.Context, s model.Session) error
	SessionByTokenHash(ctx context.Context, hash string, now time.Time) (model.Session, error)
	DeleteSession(ctx context.Context, hash string) error
}

var _ Store = (*storage.DB)(nil)

type Config struct {
	CookieName        string
	SessionTTL        time.Duration
	AllowRegistration bool
	CookieSecure      bool
	LoginRatePerMin   int
	LoginBurst        int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	store  Store
	log    logx.Logger
	cookie string
	ttl    time.Duration
	secure bool
	cost   int
	open   atomic.Bool
	limit  atomic.Pointer[limiter]
}

func NewService(store Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, log: log, cookie: cfg.CookieName, ttl: cfg.SessionTTL, secure: cfg.CookieSecure, cost: cfg.BcryptCost}
	if s.cookie == "" {
		s.cookie = DefaultCookieName
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	s.Apply(cfg)
	return s
}

// Apply updates the hot-reloadable settings.
func (s *Service) Apply(cfg Config) {
	s.open.Store(cfg.AllowRegistration)
	s.limit.Store(newLimiter(cfg.LoginRatePerMin, cfg.LoginBurst))
}

func (s *Service) CookieName() string { return s.cookie }

// HashPassword bcrypt-hashes a password with the service's cost.
func (s *Service) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether password matches a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeUsername(v string) string { return strings.TrimSpace(v) }

func validate(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n == 0 || n > maxUsernameLen || len(password) < minPasswordLen {
		return ErrInvalidInput
	}
	return nil
}

func (s *Service) Register(ctx context.Context, username, password string) (model.User, error) {
	if !s.open.Load() {
		return model.User{}, ErrRegistrationClosed
	}
	username = normalizeUsername(username)
	if err := validate(username, password); err != nil {
		return model.User{}, err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.store.CreateUser(ctx, username, hash)
	if errors.Is(err, storage.ErrConflict) {
		return model.User{}, ErrUsernameTaken
	}
	if err != nil {
		return model.User{}, err
	}
	s.log.Info("user registered", logx.Int64("user", u.ID), logx.String("username", u.Username))
	return u, nil
}

// Login checks credentials and opens a session. clientKey scopes the
// rate limit (usually the remote address). The returned token is the only
// copy of the session secret; the store keeps its hash.
func (s *Service) Login(ctx context.Context, username, password, clientKey string, now time.Time) (model.User, string, time.Time, error) {
	if !s.limit.Load().allow(clientKey, now) {
		return model.User{}, "", time.Time{}, ErrRateLimited
	}
	u, err := s.store.UserByName(ctx, normalizeUsername(username))
	if errors.Is(err, storage.ErrNotFound) {
		return model.User{}, "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, "", time.Time{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.log.Debug("login rejected", logx.String("username", u.Username), logx.String("client", clientKey))
		return model.User{}, "", time.Time{}, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return model.User{}, "", time.Time{}, err
	}
	exp := now.Add(s.ttl)
	sess := model.Session{
		ID:        ulid.Make().String(),
		UserID:    u.ID,
		TokenHash: hashToken(token),
		CreatedAt: now,
		ExpiresAt: exp,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return model.User{}, "", time.Time{}, err
	}
	return u, token, exp, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.store.DeleteSession(ctx, hashToken(token))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Authenticate resolves the session cookie on r.
func (s *Service) Authenticate(r *http.Request, now time.Time) (model.User, model.Session, bool) {
	c, err := r.Cookie(s.cookie)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return model.User{}, model.Session{}, false
	}
	sess, err := s.store.SessionByTokenHash(r.Context(), hashToken(c.Value), now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("session lookup failed", logx.Err(err))
		}
		return model.User{}, model.Session{}, false
	}
	u, err := s.store.UserByID(r.Context(), sess.UserID)
	if err != nil {
		return model.User{}, model.Session{}, false
	}
	return u, sess, true
}

// RequireAPI rejects requests without a valid session with a JSON 401 and
// stores the principal in the request context otherwise.
func (s *Service) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, sess, ok := s.Authenticate(r, time.Now().UTC())
		if !ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		ctx := withSession(WithUser(r.Context(), u), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) SetSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
}

func (s *Service) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
