package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	DefaultTokenExpiry = 24 * time.Hour
	loginFailedMessage = "Invalid credentials."

	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLength  = 16
	argonKeyLength   = 32
)

var (
	ErrUserExists         = errors.New("a user already exists with provided email id")
	ErrInvalidCredentials = errors.New(loginFailedMessage)
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegistrationRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ProfileImage string `json:"profileImage"`
}

func (r *RegistrationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(r.Password) == "" {
		return errors.New("password is required")
	}
	if strings.TrimSpace(r.ProfileImage) == "" {
		return errors.New("profile picture is required")
	}
	return nil
}

// UserCredentials is the stored form of a user: the public profile plus
// the password hash and login throttling counters.
type UserCredentials struct {
	models.User
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
	// Counter for consecutive failed login attempts to throttle brute force attacks.
	FailedLoginAttempts int64 `json:"failedLoginAttempts"`
	LastAttemptTime     int64 `json:"lastAttemptTime"`
}

func (uc *UserCredentials) ResetFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts = 0
	uc.LastAttemptTime = now.Unix()
}

func (uc *UserCredentials) IncrementFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts++
	uc.LastAttemptTime = now.Unix()
}

// Store persists credentials and issued tokens between restarts.
// Only token hashes ever reach the store.
type Store interface {
	UpsertCredentials(credentials UserCredentials) error
	ListCredentials() ([]UserCredentials, error)
	UpsertToken(userID string, tokenHash string) error
	DeleteToken(tokenHash string) error
	ListTokens() (map[string]string, error)
}

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type AuthService struct {
	Config
	store Store
	// users is keyed by email.
	users      *geche.Locker[string, *UserCredentials]
	liveTokens geche.Geche[string, string]
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store Store) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	as := &AuthService{
		Config:     config,
		store:      store,
		users:      geche.NewLocker[string, *UserCredentials](geche.NewMapCache[string, *UserCredentials]()),
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}

	creds, err := store.ListCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	tx := as.users.Lock()
	for i := range creds {
		tx.Set(creds[i].Email, &creds[i])
	}
	tx.Unlock()

	tokens, err := store.ListTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for hash, userID := range tokens {
		as.liveTokens.Set(hash, userID)
	}

	return as, nil
}

// Register creates a new user and issues a bearer token for it.
func (as *AuthService) Register(req RegistrationRequest) (models.User, string, error) {
	if err := req.Validate(); err != nil {
		return models.User{}, "", err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := as.hashPassword(req.Password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	tx := as.users.Lock()
	defer tx.Unlock()
	if _, err := tx.Get(email); err == nil {
		return models.User{}, "", ErrUserExists
	}

	creds := &UserCredentials{
		User: models.User{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(req.Name),
			Email:        email,
			ProfileImage: req.ProfileImage,
		},
		PasswordHash: hash,
		CreatedAt:    as.now().Unix(),
	}

	if err := as.store.UpsertCredentials(*creds); err != nil {
		return models.User{}, "", fmt.Errorf("failed to persist user: %w", err)
	}
	tx.Set(email, creds)

	token, err := as.issueToken(creds.ID)
	if err != nil {
		return models.User{}, "", err
	}

	return creds.User, token, nil
}

// Login verifies the credentials and issues a bearer token.
func (as *AuthService) Login(req LoginRequest) (models.User, string, error) {
	now := as.now()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(email)
	if err != nil {
		return models.User{}, "", ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 3 {
		nextAttempt := user.LastAttemptTime + 30*(user.FailedLoginAttempts*user.FailedLoginAttempts)
		if now.Unix() < nextAttempt {
			return models.User{}, "", fmt.Errorf(
				"too many failed login attempts, next attempt in %d seconds",
				nextAttempt-now.Unix())
		}
	}

	ok, err := as.comparePassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		user.IncrementFailedLoginAttempts(now)
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := as.issueToken(user.ID)
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return models.User{}, "", errors.New("internal error")
	}

	user.ResetFailedLoginAttempts(now)

	return user.User, token, nil
}

func (as *AuthService) Logoff(token string) error {
	hash := as.hashToken(token)
	if err := as.store.DeleteToken(hash); err != nil {
		return err
	}
	return as.liveTokens.Del(hash)
}

// UserID resolves a bearer token to the user it was issued for.
func (as *AuthService) UserID(token string) (string, error) {
	return as.liveTokens.Get(as.hashToken(token))
}

func (as *AuthService) issueToken(userID string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(b)

	hash := as.hashToken(token)
	if err := as.store.UpsertToken(userID, hash); err != nil {
		return "", fmt.Errorf("failed to persist token: %w", err)
	}
	as.liveTokens.Set(hash, userID)

	return token, nil
}

func (as *AuthService) hashToken(token string) string {
	h := sha256.New()
	h.Write(as.secretBytes)
	h.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (as *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism, b64Salt, b64Hash), nil
}

func (as *AuthService) comparePassword(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, err
	}
	if version != argon2.Version {
		return false, errors.New("incompatible argon2 version")
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}
