package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Signer creates and validates short-lived HMAC tokens binding a subject to a payload.
// The fake API mints password-reset tokens with it.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a signed token for subject and payload.
func (s *Signer) Generate(subject, payload string) (string, time.Time, error) {
	if subject == "" || payload == "" {
		return "", time.Time{}, fmt.Errorf("subject and payload required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	ts := fmt.Sprintf("%d", expiresAt.Unix())
	token := strings.Join([]string{subject, ts, encoded, s.sign(subject, ts, encoded)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded subject and payload.
func (s *Signer) Parse(token string) (subject, payload string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", fmt.Errorf("invalid token format")
	}
	subject, ts, encoded, signature := parts[0], parts[1], parts[2], parts[3]

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("decode payload: %w", err)
	}
	var expUnix int64
	if _, err := fmt.Sscanf(ts, "%d", &expUnix); err != nil {
		return "", "", fmt.Errorf("invalid timestamp")
	}
	if !hmac.Equal([]byte(s.sign(subject, ts, encoded)), []byte(signature)) {
		return "", "", fmt.Errorf("invalid token signature")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", fmt.Errorf("token expired")
	}
	return subject, string(raw), nil
}

func (s *Signer) sign(subject, ts, encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
