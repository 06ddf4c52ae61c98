package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
)

// Claims is the JWT payload carried by an access token.
type Claims struct {
	UserID string     `json:"uid"`
	Role   types.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is returned on successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Manager implements login, refresh, logout and user management.
type Manager struct {
	store      storage.Store
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

// NewManager constructs a session Manager.
func NewManager(store storage.Store, signingKey string, accessTTL, refreshTTL time.Duration, bcryptCost int) *Manager {
	return &Manager{
		store:      store,
		signingKey: []byte(signingKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
	}
}

// CreateUser hashes password and persists a new User. Intended for
// admin-driven provisioning; there is no self-service registration.
func (m *Manager) CreateUser(username, password string, role types.Role) (*types.User, error) {
	if username == "" || password == "" {
		return nil, apierr.New(apierr.KindMissingField, "username and password are required")
	}
	if _, err := m.store.GetUserByUsername(username); err == nil {
		return nil, apierr.New(apierr.KindConflict, "username already exists").WithField("username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("session: hash password: %w", err)
	}

	user := &types.User{
		ID:               uuid.NewString(),
		Username:         username,
		PasswordVerifier: string(hash),
		Role:             role,
		CreatedAt:        time.Now(),
	}
	if err := m.store.CreateUser(user); err != nil {
		return nil, fmt.Errorf("session: create user: %w", err)
	}
	return user, nil
}

// Login verifies handle/password and issues a fresh token pair.
func (m *Manager) Login(username, password string) (*TokenPair, error) {
	user, err := m.store.GetUserByUsername(username)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidCredentials, "invalid username or password")
	}
	if user.Disabled {
		return nil, apierr.New(apierr.KindInvalidCredentials, "account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordVerifier), []byte(password)); err != nil {
		return nil, apierr.New(apierr.KindInvalidCredentials, "invalid username or password")
	}

	user.LastLoginAt = time.Now()
	if err := m.store.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("session: record login time: %w", err)
	}

	return m.issuePair(user, "")
}

// Refresh rotates refreshTokenValue: it mints a new pair and revokes the
// presented token in the same logical operation, so replaying an old
// refresh token after rotation fails.
func (m *Manager) Refresh(refreshTokenValue string) (*TokenPair, error) {
	record, err := m.lookupRefreshToken(refreshTokenValue)
	if err != nil {
		return nil, err
	}
	if record.Revoked() {
		return nil, apierr.New(apierr.KindRevoked, "refresh token has been revoked")
	}
	if record.Expired(time.Now()) {
		return nil, apierr.New(apierr.KindTokenExpired, "refresh token has expired")
	}

	user, err := m.store.GetUser(record.UserID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTokenInvalid, "user no longer exists", err)
	}
	if user.Disabled {
		return nil, apierr.New(apierr.KindTokenInvalid, "account is disabled")
	}

	record.RevokedAt = time.Now()
	if err := m.store.UpdateRefreshToken(record); err != nil {
		return nil, fmt.Errorf("session: revoke rotated token: %w", err)
	}

	return m.issuePair(user, record.ID)
}

// Logout revokes refreshTokenValue. It is not an error to log out with a
// token that is already revoked or unknown.
func (m *Manager) Logout(refreshTokenValue string) error {
	record, err := m.lookupRefreshToken(refreshTokenValue)
	if err != nil {
		return nil
	}
	if record.Revoked() {
		return nil
	}
	record.RevokedAt = time.Now()
	return m.store.UpdateRefreshToken(record)
}

// ValidateAccessToken parses and verifies tokenString, returning its claims.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		if isExpired(err) {
			return nil, apierr.New(apierr.KindTokenExpired, "access token has expired")
		}
		return nil, apierr.Wrap(apierr.KindTokenInvalid, "invalid access token", err)
	}
	if !token.Valid {
		return nil, apierr.New(apierr.KindTokenInvalid, "invalid access token")
	}
	return claims, nil
}

func isExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func (m *Manager) issuePair(user *types.User, parentTokenID string) (*TokenPair, error) {
	now := time.Now()
	expiresAt := now.Add(m.accessTTL)

	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return nil, fmt.Errorf("session: sign access token: %w", err)
	}

	rawRefresh, tokenHash, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("session: generate refresh token: %w", err)
	}

	// The token hash doubles as the storage key: a raw refresh token is the
	// only thing Refresh/Logout have to look it up by, and the store indexes
	// records by ID alone.
	record := &types.RefreshToken{
		ID:        tokenHash,
		UserID:    user.ID,
		TokenHash: tokenHash,
		ParentID:  parentTokenID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	if err := m.store.CreateRefreshToken(record); err != nil {
		return nil, fmt.Errorf("session: store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: rawRefresh, ExpiresAt: expiresAt}, nil
}

// lookupRefreshToken finds the stored RefreshToken for the opaque raw
// value presented by the client. Its hash is the storage key, so no scan
// by user is needed.
func (m *Manager) lookupRefreshToken(raw string) (*types.RefreshToken, error) {
	hash := hashToken(raw)
	record, err := m.store.GetRefreshToken(hash)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTokenInvalid, "invalid refresh token", err)
	}
	return record, nil
}

func newOpaqueToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
