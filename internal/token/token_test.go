package token

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	signed, err := m.Issue(42, "sess-abc")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.SessionID != 42 {
		t.Errorf("Expected session ID 42, got %d", claims.SessionID)
	}
	if claims.SessionKey != "sess-abc" {
		t.Errorf("Expected session key sess-abc, got %q", claims.SessionKey)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := NewManager("secret-a", time.Hour).Issue(1, "sess")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := NewManager("secret-b", time.Hour).Verify(signed); err == nil {
		t.Error("Expected verification to fail with wrong secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.Verify("not.a.token"); err == nil {
		t.Error("Expected verification to fail for malformed token")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", time.Nanosecond)

	signed, err := m.Issue(1, "sess")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := m.Verify(signed); err == nil {
		t.Error("Expected verification to fail for expired token")
	}
}

func TestZeroTTLFallsBackToDefault(t *testing.T) {
	m := NewManager("test-secret", 0)

	signed, err := m.Issue(1, "sess")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := m.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < DefaultTTL-time.Minute || remaining > DefaultTTL {
		t.Errorf("Expected default TTL near %v, got %v remaining", DefaultTTL, remaining)
	}
}
