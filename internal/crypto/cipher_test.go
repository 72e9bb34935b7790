package crypto

import (
	"strings"
	"testing"

	xerrors "DroidRelay/internal/errors"
)

func TestAESCipherRoundTrip(t *testing.T) {
	c, err := NewAESCipher("s3cret", "")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	first, err := c.Encrypt("fk-abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := c.Encrypt("fk-abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Fatalf("nonce reuse: identical ciphertexts")
	}
	if strings.Contains(first, "fk-abc") {
		t.Fatalf("ciphertext leaks plaintext: %s", first)
	}

	plain, err := c.Decrypt(first)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "fk-abc" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestAESCipherRejectsForeignKey(t *testing.T) {
	a, err := NewAESCipher("one", "salt")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	b, err := NewAESCipher("two", "salt")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := a.Encrypt("fk-abc")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.Decrypt(sealed); xerrors.CodeOf(err) != xerrors.CodeCryptoFailure {
		t.Fatalf("expected crypto failure, got %v", err)
	}
}

func TestAESCipherReadsPlainValues(t *testing.T) {
	c, err := NewAESCipher("s3cret", "")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	stored, _ := Plain{}.Encrypt("fk-legacy")
	plain, err := c.Decrypt(stored)
	if err != nil || plain != "fk-legacy" {
		t.Fatalf("expected plain passthrough, got %q, %v", plain, err)
	}
}

func TestNewAESCipherRequiresSecret(t *testing.T) {
	if _, err := NewAESCipher("  ", ""); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPlainCannotOpenSealedValues(t *testing.T) {
	if _, err := (Plain{}).Decrypt("gcm:00"); err == nil {
		t.Fatalf("expected error")
	}
}
