package secrets_test

import (
	"strings"
	"testing"

	"github.com/cassaevelyn/smartlib/internal/secrets"
)

func TestGenerateTokenLengthAndCharset(t *testing.T) {
	tok, err := secrets.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	// 32 bytes base64url without padding -> 43 chars
	if len(tok) != 43 {
		t.Errorf("token length = %d, want 43", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Errorf("token %q contains non-URL-safe characters", tok)
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := secrets.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := secrets.GenerateOTP(6)
		if err != nil {
			t.Fatalf("GenerateOTP: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("otp length = %d, want 6", len(otp))
		}
		for _, r := range otp {
			if r < '0' || r > '9' {
				t.Fatalf("otp %q contains non-digit %q", otp, r)
			}
		}
	}
}

func TestGenerateOTPRejectsBadLength(t *testing.T) {
	for _, l := range []int{0, 3, 11, -1} {
		if _, err := secrets.GenerateOTP(l); err == nil {
			t.Errorf("GenerateOTP(%d) expected error", l)
		}
	}
}
