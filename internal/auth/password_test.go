package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword_Verify(t *testing.T) {
	hash, err := HashPassword("s3cret-пароль")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-пароль" {
		t.Fatal("хэш совпадает с паролем")
	}
	if !VerifyPassword(hash, "s3cret-пароль") {
		t.Error("верный пароль не прошёл проверку")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Error("неверный пароль прошёл проверку")
	}
	if VerifyPassword(hash, "") {
		t.Error("пустой пароль прошёл проверку")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, _ := HashPassword("password123")
	b, _ := HashPassword("password123")
	if a == b {
		t.Error("хэши одного пароля совпадают, ожидалась соль")
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("ожидалась ErrPasswordTooLong, получено %v", err)
	}
}
