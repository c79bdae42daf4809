package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret-key-at-least-32-bytes-long"

func newTestManager() *TokenManager {
	return NewTokenManager(testSecret, "task-tracker", 15*time.Minute, 7*24*time.Hour)
}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	m := newTestManager()
	userID := uuid.New()

	issued, err := m.IssueAccess(userID)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := m.Parse(issued.Token, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if got != userID {
		t.Errorf("UserID = %s, ожидался %s", got, userID)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("Type = %q, ожидался access", claims.Type)
	}
}

func TestTokenManager_RefreshHasUniqueID(t *testing.T) {
	m := newTestManager()
	userID := uuid.New()

	a, _ := m.IssueRefresh(userID)
	b, _ := m.IssueRefresh(userID)
	if a.ID == b.ID || a.Token == b.Token {
		t.Error("refresh-токены должны быть уникальными")
	}
}

func TestTokenManager_WrongType(t *testing.T) {
	m := newTestManager()
	refresh, _ := m.IssueRefresh(uuid.New())

	if _, err := m.Parse(refresh.Token, TokenTypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("ожидалась ErrWrongTokenType, получено %v", err)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	m := newTestManager()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	issued, _ := m.IssueAccess(uuid.New())

	m.now = time.Now
	if _, err := m.Parse(issued.Token, TokenTypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ожидалась ErrTokenExpired, получено %v", err)
	}
}

func TestTokenManager_InvalidSignature(t *testing.T) {
	other := NewTokenManager("another-secret-key-at-least-32-bytes", "task-tracker", time.Minute, time.Hour)
	issued, _ := other.IssueAccess(uuid.New())

	if _, err := newTestManager().Parse(issued.Token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ожидалась ErrInvalidToken, получено %v", err)
	}
}

func TestTokenManager_Malformed(t *testing.T) {
	if _, err := newTestManager().Parse("not-a-jwt", TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ожидалась ErrInvalidToken, получено %v", err)
	}
}

func TestTokenManager_RejectsOtherAlgorithm(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "task-tracker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := newTestManager().Parse(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ожидалась ErrInvalidToken для HS512, получено %v", err)
	}
}

func TestTokenManager_MissingSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "task-tracker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

	if _, err := newTestManager().Parse(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ожидалась ErrInvalidToken без sub, получено %v", err)
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token")
	if len(a) != 64 {
		t.Errorf("длина хэша = %d, ожидалось 64", len(a))
	}
	if a != HashToken("token") {
		t.Error("хэш должен быть детерминированным")
	}
	if a == HashToken("other") {
		t.Error("хэши разных токенов совпадают")
	}
}
