package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pixelnest/gallery/internal/session"
	"github.com/pixelnest/gallery/internal/user"
)

// ErrInvalidCredentials is returned when the email is unknown or the password does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned by SignUp when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidToken is returned when a token fails verification or its session is gone.
var ErrInvalidToken = errors.New("invalid or expired token")

// Users is the subset of the user service that auth depends on.
type Users interface {
	Create(ctx context.Context, email, passwordHash string) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// Result is returned by SignUp and SignIn.
type Result struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// Service contains the business logic for email/password authentication.
type Service struct {
	users    Users
	sessions SessionStore
	events   session.Publisher
	secret   []byte
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	hash     func(string) (string, error)
	verify   func(password, encoded string) (bool, error)
}

// decoyHash is verified against when the email is unknown, so a miss costs
// the same argon2 work as a wrong password.
var decoyHash = sync.OnceValue(func() string {
	h, err := HashPassword("decoy password for unknown accounts")
	if err != nil {
		return ""
	}
	return h
})

// NewService creates a new auth Service. events may be nil.
func NewService(users Users, sessions SessionStore, events session.Publisher, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		events:   events,
		secret:   []byte(secret),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		newID:    newSessionID,
		hash:     HashPassword,
		verify:   VerifyPassword,
	}
}

// SignUp registers a new account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Result, error) {
	hash, err := s.hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, email, hash)
	if errors.Is(err, user.ErrAlreadyExists) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("user_id", u.ID))
	return s.startSession(ctx, u)
}

// SignIn verifies credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		_, _ = s.verify(password, decoyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.verify(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, u)
}

// SignOut ends the session behind id. Open watch streams for that session are told to close.
func (s *Service) SignOut(ctx context.Context, id *session.Identity) error {
	if err := s.sessions.Delete(ctx, id.SessionID); err != nil {
		return err
	}
	s.publish(ctx, session.Event{Kind: session.EventSignedOut, UserID: id.UserID, SessionID: id.SessionID})
	s.logger.Info("user signed out", slog.String("user_id", id.UserID))
	return nil
}

// Authenticate verifies the token signature and that its session is still active.
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (*session.Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}

	return &session.Identity{UserID: sess.UserID, Email: sess.Email, SessionID: sess.ID}, nil
}

// CurrentUser returns the stored account for the signed-in identity.
func (s *Service) CurrentUser(ctx context.Context, id *session.Identity) (*user.User, error) {
	return s.users.GetByID(ctx, id.UserID)
}

func (s *Service) startSession(ctx context.Context, u *user.User) (*Result, error) {
	now := s.now()
	sess := &Session{
		ID:        s.newID(),
		UserID:    u.ID,
		Email:     u.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	token, err := s.issueToken(sess)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, session.Event{Kind: session.EventSignedIn, UserID: u.ID, SessionID: sess.ID})
	return &Result{Token: token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

type tokenClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// issueToken creates a signed JWT bound to the session.
func (s *Service) issueToken(sess *Session) (string, error) {
	claims := tokenClaims{
		Email:     sess.Email,
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) publish(ctx context.Context, ev session.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish session event failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

func newSessionID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
