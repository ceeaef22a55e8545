package backup

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestDeriveKeyFromPassphrase(t *testing.T) {
	key, err := DeriveKeyFromPassphrase([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}

	if !strings.HasPrefix(key.Recipient, "age1") {
		t.Errorf("recipient = %q, want age1 prefix", key.Recipient)
	}
	if !strings.HasPrefix(key.Identity, "AGE-SECRET-KEY-1") {
		t.Errorf("identity = %q, want AGE-SECRET-KEY-1 prefix", key.Identity)
	}

	// Both halves must be valid age encodings, and the identity must map back
	// to the same recipient so age itself agrees with our curve math.
	identity, err := age.ParseX25519Identity(key.Identity)
	if err != nil {
		t.Fatalf("derived identity rejected by age: %v", err)
	}
	if got := identity.Recipient().String(); got != key.Recipient {
		t.Errorf("identity recipient = %q, want %q", got, key.Recipient)
	}
	if _, err := age.ParseX25519Recipient(key.Recipient); err != nil {
		t.Errorf("derived recipient rejected by age: %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKeyFromPassphrase([]byte("swordfish"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}
	b, err := DeriveKeyFromPassphrase([]byte("swordfish"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}
	if a.Recipient != b.Recipient || a.Identity != b.Identity {
		t.Error("same passphrase produced different keys")
	}

	other, err := DeriveKeyFromPassphrase([]byte("swordfish2"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}
	if other.Recipient == a.Recipient {
		t.Error("different passphrases produced the same key")
	}
}

func TestDeriveKeyEmptyPassphrase(t *testing.T) {
	if _, err := DeriveKeyFromPassphrase(nil); err == nil {
		t.Error("DeriveKeyFromPassphrase(nil) succeeded, want error")
	}
}

func TestDerivedKeyRoundTrip(t *testing.T) {
	key, err := DeriveKeyFromPassphrase([]byte("roundtrip test"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}
	recipient, err := key.AgeRecipient()
	if err != nil {
		t.Fatalf("AgeRecipient() error = %v", err)
	}

	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		t.Fatalf("age.Encrypt() error = %v", err)
	}
	if _, err := io.WriteString(w, "payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	identity, err := age.ParseX25519Identity(key.Identity)
	if err != nil {
		t.Fatalf("parse identity: %v", err)
	}
	r, err := age.Decrypt(&ciphertext, identity)
	if err != nil {
		t.Fatalf("age.Decrypt() error = %v", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read plaintext: %v", err)
	}
	if string(plain) != "payload" {
		t.Errorf("decrypted %q, want %q", plain, "payload")
	}
}

func TestParseRecipients(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	recipients, err := ParseRecipients([]string{identity.Recipient().String()})
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	if len(recipients) != 1 {
		t.Fatalf("got %d recipients, want 1", len(recipients))
	}

	if _, err := ParseRecipients([]string{"not-a-recipient"}); err == nil {
		t.Error("ParseRecipients() accepted garbage")
	}
}

func TestLoadRecipients(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	passFile := filepath.Join(t.TempDir(), "passphrase")
	if err := os.WriteFile(passFile, []byte("hunter2\n"), 0600); err != nil {
		t.Fatalf("write passphrase file: %v", err)
	}

	recipients, err := LoadRecipients([]string{identity.Recipient().String()}, passFile)
	if err != nil {
		t.Fatalf("LoadRecipients() error = %v", err)
	}
	if len(recipients) != 2 {
		t.Errorf("got %d recipients, want explicit + derived", len(recipients))
	}

	// Trailing whitespace in the file must not change the derived key.
	derived, err := DeriveKeyFromPassphrase([]byte("hunter2"))
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase() error = %v", err)
	}
	if got := recipients[1].(*age.X25519Recipient).String(); got != derived.Recipient {
		t.Errorf("derived recipient = %q, want %q", got, derived.Recipient)
	}

	if _, err := LoadRecipients(nil, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LoadRecipients() with missing passphrase file succeeded")
	}
}
