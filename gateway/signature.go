package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// SignatureScheme signs and verifies payloads for one provider.
type SignatureScheme interface {
	Sign(payload []byte, secret string) string
	Verify(payload []byte, signature, secret string) bool
}

// HMACSHA256 is the razorpay scheme: hex(HMAC-SHA256(payload, secret)).
type HMACSHA256 struct{}

func (HMACSHA256) Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s HMACSHA256) Verify(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := s.Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// SaltedChecksum is the phonepe scheme: hex(SHA-256(base64Payload + path + salt)) + "###" + saltIndex.
// Path is empty for server callbacks.
type SaltedChecksum struct {
	Path      string
	SaltIndex string
}

func (s SaltedChecksum) Sign(payload []byte, secret string) string {
	sum := sha256.Sum256([]byte(string(payload) + s.Path + secret))
	return fmt.Sprintf("%s###%s", hex.EncodeToString(sum[:]), s.SaltIndex)
}

func (s SaltedChecksum) Verify(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	hash, index, ok := strings.Cut(signature, "###")
	if !ok || index != s.SaltIndex {
		return false
	}
	sum := sha256.Sum256([]byte(string(payload) + s.Path + secret))
	return hmac.Equal([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hash)))
}

type schemeEntry struct {
	scheme SignatureScheme
	secret string
}

// Schemes maps a provider id to its signature scheme and webhook secret.
type Schemes struct {
	mu      sync.RWMutex
	entries map[string]schemeEntry
}

func NewSchemes() *Schemes {
	return &Schemes{entries: make(map[string]schemeEntry)}
}

func (s *Schemes) Register(provider string, scheme SignatureScheme, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[provider] = schemeEntry{scheme: scheme, secret: secret}
}

func (s *Schemes) Verify(provider string, payload []byte, signature string) (bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[provider]
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("no signature scheme registered for provider %q", provider)
	}
	return entry.scheme.Verify(payload, signature, entry.secret), nil
}

func (s *Schemes) Sign(provider string, payload []byte) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[provider]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no signature scheme registered for provider %q", provider)
	}
	return entry.scheme.Sign(payload, entry.secret), nil
}
