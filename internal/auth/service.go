package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskbounty/backend/internal/badges"
	"github.com/taskbounty/backend/internal/models"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole is returned for self-registration with a role other
	// than poster or hunter.
	ErrInvalidRole = errors.New("invalid role")
)

// Store is the user persistence auth needs.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GrantBadge(ctx context.Context, userID uuid.UUID, key string) error
	RecordLogin(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ValidateToken(token string) (models.Actor, error)
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
}

type service struct {
	store  Store
	secret []byte
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store Store, secret string, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, secret: []byte(secret), log: log, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates a poster or hunter account and grants the welcome
// badge. Admin accounts are provisioned out of band, never here.
func (s *service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Role != models.RolePoster && in.Role != models.RoleHunter {
		return nil, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.store.Create(ctx, u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if err := s.store.GrantBadge(ctx, u.ID, badges.WelcomeBounty); err != nil {
		s.log.Warn("welcome badge grant failed", "user_id", u.ID, "error", err)
	}
	return u, nil
}

// Login verifies credentials, advances the daily login streak, and issues
// a signed token. At the streak threshold the streak badge is granted.
func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	streak, err := s.store.RecordLogin(ctx, u.ID, s.now())
	if err != nil {
		s.log.Warn("login streak update failed", "user_id", u.ID, "error", err)
	} else {
		u.StreakCount = streak
		if streak >= badges.StreakThreshold {
			if err := s.store.GrantBadge(ctx, u.ID, badges.StreakMaster); err != nil {
				s.log.Warn("streak badge grant failed", "user_id", u.ID, "error", err)
			}
		}
	}

	token, err := s.issueToken(u.ID, u.Role)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken parses and verifies a bearer token, returning the actor
// it vouches for.
func (s *service) ValidateToken(token string) (models.Actor, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return models.Actor{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return models.Actor{}, errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{ID: id, Role: c.Role}, nil
}
