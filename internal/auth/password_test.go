package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}
	if !VerifyPassword(hash, "correct horse") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "battery staple") {
		t.Fatal("wrong password verified")
	}

	again, _ := HashPassword("correct horse")
	if again == hash {
		t.Fatal("expected a fresh salt per hash")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, h := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$c3Vt",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$c3Vt",
		"$argon2id$v=19$m=0,t=3,p=1$c2FsdA$c3Vt",
		"$argon2id$v=19$m=65536,t=3,p=1$!!$c3Vt",
		"$argon2id$v=19$x=1$c2FsdA$c3Vt",
	} {
		if VerifyPassword(h, "anything") {
			t.Fatalf("%q verified", h)
		}
	}
	if _, err := parseHash("nope"); err != ErrInvalidHash {
		t.Fatalf("got %v, want ErrInvalidHash", err)
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"alice", true},
		{"a.b-c_d", true},
		{"ab", false},
		{"has space", false},
		{strings.Repeat("x", 33), false},
		{"émile", false},
		{"external:oidc-1d81edfe4c5d05a3", false},
	}
	for _, tt := range tests {
		if err := ValidateUsername(tt.name); (err == nil) != tt.ok {
			t.Errorf("ValidateUsername(%q) = %v", tt.name, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Error("expected short password to fail")
	}
	if err := ValidatePassword(strings.Repeat("p", 129)); err == nil {
		t.Error("expected long password to fail")
	}
	if err := ValidatePassword("long enough"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
