package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/socio/backend/internal/mailer"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TokenTTL is the lifetime of issued access tokens.
const TokenTTL = 72 * time.Hour

// IDTokenVerifier checks a Firebase ID token. *auth.Client satisfies it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthService handles registration, email confirmation and sign-in.
type AuthService struct {
	users         repositories.UserRepository
	pending       repositories.PendingSignupRepository
	mailer        mailer.Mailer
	firebase      IDTokenVerifier
	jwtSecret     string
	publicBaseURL string
	log           *zap.Logger
	now           func() time.Time
}

// NewAuthService wires an AuthService. firebase may be nil, which disables
// Firebase login.
func NewAuthService(users repositories.UserRepository, pending repositories.PendingSignupRepository, m mailer.Mailer, firebase IDTokenVerifier, jwtSecret, publicBaseURL string, log *zap.Logger) *AuthService {
	return &AuthService{
		users:         users,
		pending:       pending,
		mailer:        m,
		firebase:      firebase,
		jwtSecret:     jwtSecret,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
		now:           time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup stores a pending registration and mails its confirmation link.
// No account exists until the link is followed.
func (s *AuthService) Signup(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	if _, err := s.users.GetUserByEmail(email); err == nil {
		return conflict("An account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if _, err := s.pending.GetByEmail(email); err == nil {
		return conflict("A confirmation link was already sent to this email")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p := &models.PendingSignup{
		Email:    email,
		Password: string(hashed),
		Token:    strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	if err := s.pending.Create(p); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/api/v1/auth/confirm/%s", s.publicBaseURL, p.Token)
	body := fmt.Sprintf(`<p>Welcome to Socio!</p><p>Confirm your email address to activate your account:</p><p><a href="%s">%s</a></p>`,
		html.EscapeString(link), html.EscapeString(link))
	if err := s.mailer.Send(ctx, email, "Confirm your Socio account", body); err != nil {
		s.log.Error("failed to send confirmation email", zap.String("email", email), zap.Error(err))
		if derr := s.pending.Delete(p.ID); derr != nil {
			s.log.Error("failed to drop pending signup", zap.Uint("id", p.ID), zap.Error(derr))
		}
		return newError(KindUnavailable, "Could not send the confirmation email, please try again")
	}
	return nil
}

// Confirm redeems a confirmation token. created is false when the account
// had already been activated.
func (s *AuthService) Confirm(ctx context.Context, token string) (user *models.User, created bool, err error) {
	p, err := s.pending.GetByToken(token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, notFound("Invalid or expired confirmation link")
	}
	if err != nil {
		return nil, false, err
	}

	existing, err := s.users.GetUserByEmail(p.Email)
	if err == nil {
		if derr := s.pending.Delete(p.ID); derr != nil {
			return nil, false, derr
		}
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	username, err := s.uniqueUsername(models.UsernameFromEmail(p.Email))
	if err != nil {
		return nil, false, err
	}
	user = &models.User{Username: username, Email: p.Email, Password: p.Password}
	if err := s.users.CreateUser(user); err != nil {
		return nil, false, err
	}
	if err := s.pending.Delete(p.ID); err != nil {
		return nil, false, err
	}
	s.log.Info("account activated", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, true, nil
}

// uniqueUsername returns base, or base followed by the first free number.
func (s *AuthService) uniqueUsername(base string) (string, error) {
	if base == "" {
		base = "user"
	}
	base = truncateRunes(base, 140)
	candidate := base
	for i := 1; ; i++ {
		exists, err := s.users.UsernameExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}

// SignIn checks credentials and issues an access token.
func (s *AuthService) SignIn(email, password string) (string, *models.User, error) {
	user, err := s.users.GetUserByEmail(normalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, newError(KindUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return "", nil, err
	}
	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", nil, newError(KindUnauthorized, "Invalid email or password")
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// FirebaseLogin verifies a Firebase ID token, links or creates the matching
// local user, and issues a local access token.
func (s *AuthService) FirebaseLogin(ctx context.Context, idToken string) (string, *models.User, error) {
	if s.firebase == nil {
		return "", nil, newError(KindUnavailable, "Firebase login is not configured")
	}
	token, err := s.firebase.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", nil, newError(KindUnauthorized, "Invalid Firebase ID token")
	}
	email, _ := token.Claims["email"].(string)
	email = normalizeEmail(email)
	uid := token.UID

	user, err := s.users.GetUserByFirebaseUID(uid)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		if email == "" {
			return "", nil, newError(KindUnauthorized, "Firebase account has no email address")
		}
		user, err = s.users.GetUserByEmail(email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			username, uerr := s.uniqueUsername(models.UsernameFromEmail(email))
			if uerr != nil {
				return "", nil, uerr
			}
			user = &models.User{Username: username, Email: email, FirebaseUID: &uid}
			if name, ok := token.Claims["name"].(string); ok {
				user.FirstName, user.LastName, _ = strings.Cut(name, " ")
			}
			if err := s.users.CreateUser(user); err != nil {
				return "", nil, err
			}
		} else if err != nil {
			return "", nil, err
		} else {
			if err := s.users.SetFirebaseUID(user.ID, uid); err != nil {
				return "", nil, err
			}
			user.FirebaseUID = &uid
		}
	default:
		return "", nil, err
	}

	local, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return local, user, nil
}

// IssueToken signs an HS256 access token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}
