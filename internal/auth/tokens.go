// Пакет auth — выпуск и проверка JWT (HS256), хэширование паролей
// и ограничение неудачных попыток входа.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Типы токенов (claim type).
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Ошибки проверки токенов.
var (
	// ErrInvalidToken — токен повреждён, подписан другим ключом или без обязательных claims.
	ErrInvalidToken = errors.New("недействительный токен")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("срок действия токена истёк")
	// ErrWrongTokenType — тип токена не совпадает с ожидаемым.
	ErrWrongTokenType = errors.New("неверный тип токена")
)

// Claims — claims токенов Task Tracker.
type Claims struct {
	jwt.RegisteredClaims
	// Type — access или refresh
	Type string `json:"type"`
}

// UserID возвращает идентификатор пользователя из sub.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: sub не является UUID", ErrInvalidToken)
	}
	return id, nil
}

// IssuedToken — выпущенный токен.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenManager выпускает и проверяет JWT, подписанные общим секретом.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager создаёт TokenManager.
func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL возвращает время жизни access-токена.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// IssueAccess выпускает access-токен пользователя.
func (m *TokenManager) IssueAccess(userID uuid.UUID) (*IssuedToken, error) {
	return m.issue(userID, TokenTypeAccess, m.accessTTL)
}

// IssueRefresh выпускает refresh-токен пользователя с уникальным jti.
func (m *TokenManager) IssueRefresh(userID uuid.UUID) (*IssuedToken, error) {
	return m.issue(userID, TokenTypeRefresh, m.refreshTTL)
}

func (m *TokenManager) issue(userID uuid.UUID, tokenType string, ttl time.Duration) (*IssuedToken, error) {
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        id,
		},
		Type: tokenType,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return &IssuedToken{Token: token, ID: id, ExpiresAt: expiresAt}, nil
}

// Parse проверяет подпись, срок действия, issuer и тип токена.
func (m *TokenManager) Parse(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}
	if claims.Type != expectedType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// HashToken возвращает SHA-256 токена в hex. В БД хранится только хэш.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
