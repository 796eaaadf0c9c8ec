package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/socio/backend/internal/models"
	"github.com/anonto42/socio/backend/internal/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var tokenInLink = regexp.MustCompile(`/api/v1/auth/confirm/([0-9a-f]{32})`)

func signupAndConfirm(t *testing.T, e *env, email string) *models.User {
	t.Helper()
	require.NoError(t, e.auth.Signup(context.Background(), email, "password123"))
	match := tokenInLink.FindStringSubmatch(e.mailer.sent[len(e.mailer.sent)-1].html)
	require.Len(t, match, 2)
	user, created, err := e.auth.Confirm(context.Background(), match[1])
	require.NoError(t, err)
	require.True(t, created)
	return user
}

func TestSignupMailsConfirmationLink(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.auth.Signup(context.Background(), " Alice@Example.com ", "password123"))

	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", e.mailer.sent[0].to)
	assert.Contains(t, e.mailer.sent[0].html, "http://localhost:8080/api/v1/auth/confirm/")

	var users int64
	require.NoError(t, e.db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users, "no account before confirmation")

	err := e.auth.Signup(context.Background(), "alice@example.com", "password123")
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestSignupMailFailureDropsPending(t *testing.T) {
	e := newEnv(t)
	e.mailer.err = errors.New("smtp down")

	err := e.auth.Signup(context.Background(), "bob@example.com", "password123")
	assert.True(t, errors.Is(err, ErrUnavailable))

	var pending int64
	require.NoError(t, e.db.Model(&models.PendingSignup{}).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestConfirmCreatesUserFromEmail(t *testing.T) {
	e := newEnv(t)
	e.user(t, "alice")

	user := signupAndConfirm(t, e, "alice@other.org")
	assert.Equal(t, "alice1", user.Username)
	assert.Equal(t, "alice@other.org", user.Email)

	var pending int64
	require.NoError(t, e.db.Model(&models.PendingSignup{}).Count(&pending).Error)
	assert.Zero(t, pending)

	token, signed, err := e.auth.SignIn("ALICE@other.org", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signed.ID)

	claims := &models.JwtCustomClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestConfirmUnknownToken(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.auth.Confirm(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConfirmWhenAccountAlreadyExists(t *testing.T) {
	e := newEnv(t)
	existing := e.user(t, "carol")
	require.NoError(t, e.db.Create(&models.PendingSignup{Email: existing.Email, Password: "x", Token: "tok"}).Error)

	user, created, err := e.auth.Confirm(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, user.ID)

	_, _, err = e.auth.Confirm(context.Background(), "tok")
	assert.True(t, errors.Is(err, ErrNotFound), "superseded pending signup is deleted")
}

func TestSignInRejectsBadPassword(t *testing.T) {
	e := newEnv(t)
	signupAndConfirm(t, e, "dan@example.com")

	_, _, err := e.auth.SignIn("dan@example.com", "wrong-password")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	_, _, err = e.auth.SignIn("nobody@example.com", "password123")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

type fakeVerifier struct {
	token *auth.Token
	err   error
}

func (f fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	return f.token, f.err
}

func TestFirebaseLoginLinksExistingUser(t *testing.T) {
	e := newEnv(t)
	existing := e.user(t, "erin")
	users := repositories.NewPostgresUserRepository(e.db)
	svc := NewAuthService(users, repositories.NewPostgresPendingSignupRepository(e.db), e.mailer,
		fakeVerifier{token: &auth.Token{UID: "fb-1", Claims: map[string]interface{}{"email": existing.Email}}},
		"test-secret", "", zap.NewNop())

	_, user, err := svc.FirebaseLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	require.NotNil(t, user.FirebaseUID)
	assert.Equal(t, "fb-1", *user.FirebaseUID)

	svc.firebase = fakeVerifier{token: &auth.Token{UID: "fb-2", Claims: map[string]interface{}{"email": "new@example.com", "name": "New Person"}}}
	_, created, err := svc.FirebaseLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "new", created.Username)
	assert.Equal(t, "New", created.FirstName)
	assert.Equal(t, "Person", created.LastName)

	svc.firebase = fakeVerifier{err: errors.New("expired")}
	_, _, err = svc.FirebaseLogin(context.Background(), "id-token")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

// onlineOnLookup flips the user online right after the email lookup, like a
// websocket connecting while Firebase login is in flight.
type onlineOnLookup struct {
	repositories.UserRepository
}

func (r onlineOnLookup) GetUserByEmail(email string) (*models.User, error) {
	u, err := r.UserRepository.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	return u, r.UserRepository.SetPresence(u.ID, true, time.Now())
}

func TestFirebaseLinkKeepsConcurrentPresence(t *testing.T) {
	e := newEnv(t)
	existing := e.user(t, "erin")
	users := onlineOnLookup{repositories.NewPostgresUserRepository(e.db)}
	svc := NewAuthService(users, repositories.NewPostgresPendingSignupRepository(e.db), e.mailer,
		fakeVerifier{token: &auth.Token{UID: "fb-9", Claims: map[string]interface{}{"email": existing.Email}}},
		"test-secret", "", zap.NewNop())

	_, _, err := svc.FirebaseLogin(context.Background(), "id-token")
	require.NoError(t, err)

	var got models.User
	require.NoError(t, e.db.First(&got, existing.ID).Error)
	assert.True(t, got.IsOnline)
	require.NotNil(t, got.FirebaseUID)
	assert.Equal(t, "fb-9", *got.FirebaseUID)
}
