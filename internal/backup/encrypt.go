package backup

import (
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/scrypt"

	"github.com/mlvd/dirsave/pkg/bech32"
)

const (
	passphraseSalt    = "dirsave/age-passphrase/v1"
	passphraseScryptN = 1 << 15
	passphraseScryptR = 8
	passphraseScryptP = 1
)

// DerivedKey is an age X25519 key pair deterministically derived from a
// passphrase. The same passphrase always yields the same pair, so archives
// encrypted on any host stay decryptable with the standard age tool.
type DerivedKey struct {
	Recipient string // age1...
	Identity  string // AGE-SECRET-KEY-1...
}

// DeriveKeyFromPassphrase stretches the passphrase with scrypt and maps the
// result onto an X25519 key pair in age's Bech32 encodings.
func DeriveKeyFromPassphrase(passphrase []byte) (*DerivedKey, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}

	secret, err := scrypt.Key(passphrase, []byte(passphraseSalt),
		passphraseScryptN, passphraseScryptR, passphraseScryptP, curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("derive key material: %w", err)
	}

	// X25519 scalar clamping (RFC 7748), matching age's own key derivation.
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64

	public, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	recipient, err := bech32.Encode("age", public)
	if err != nil {
		return nil, fmt.Errorf("encode recipient: %w", err)
	}
	identity, err := bech32.Encode("AGE-SECRET-KEY-", secret)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}

	return &DerivedKey{Recipient: recipient, Identity: identity}, nil
}

// AgeRecipient returns the derived recipient in age's native form.
func (k *DerivedKey) AgeRecipient() (age.Recipient, error) {
	return age.ParseX25519Recipient(k.Recipient)
}

// ParseRecipients parses configured age recipient strings.
func ParseRecipients(specs []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(specs))
	for _, spec := range specs {
		r, err := age.ParseX25519Recipient(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %q: %w", spec, err)
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// LoadRecipients assembles every configured encryption recipient: explicit
// AGE_RECIPIENT entries plus, when a passphrase file is configured, the
// passphrase-derived key.
func LoadRecipients(recipientSpecs []string, passphraseFile string) ([]age.Recipient, error) {
	recipients, err := ParseRecipients(recipientSpecs)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(passphraseFile) != "" {
		data, err := os.ReadFile(passphraseFile)
		if err != nil {
			return nil, fmt.Errorf("read passphrase file: %w", err)
		}
		passphrase := strings.TrimSpace(string(data))

		key, err := DeriveKeyFromPassphrase([]byte(passphrase))
		if err != nil {
			return nil, err
		}
		r, err := key.AgeRecipient()
		if err != nil {
			return nil, fmt.Errorf("parse derived recipient: %w", err)
		}
		recipients = append(recipients, r)
	}

	return recipients, nil
}
