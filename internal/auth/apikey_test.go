package auth

import (
	"strings"
	"testing"
)

func TestNewAPIKey(t *testing.T) {
	k1, err := NewAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := NewAPIKey()
	if !strings.HasPrefix(k1, "hab_live_") || len(k1) != len("hab_live_")+32 {
		t.Fatalf("unexpected key %q", k1)
	}
	if k1 == k2 {
		t.Fatal("keys should be unique")
	}
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("hab_live_abc")
	if len(h) != 64 || h != HashAPIKey("hab_live_abc") {
		t.Fatalf("unexpected hash %q", h)
	}
	if h == HashAPIKey("hab_live_abd") {
		t.Fatal("different keys hashed the same")
	}
}

func TestTruncateHash(t *testing.T) {
	if got := TruncateHash("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateHash(strings.Repeat("a", 64)); got != strings.Repeat("a", 16)+"..." {
		t.Fatalf("got %q", got)
	}
}
