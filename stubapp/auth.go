package stubapp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/kembridge/bridgecheck/wallet"
)

// Nonces are single-use and short-lived, like the real gateway's.
const nonceTTL = 5 * time.Minute

var (
	errUnknownNonce = errors.New("stubapp: unknown or expired nonce")
	errBadSignature = errors.New("stubapp: signature verification failed")
)

// VerifyRequest is the wallet-signature payload the frontend posts.
type VerifyRequest struct {
	Chain     string `json:"chain"`
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// authStore issues nonces and exchanges verified signatures for tokens.
type authStore struct {
	mu       sync.Mutex
	nonces   map[string]time.Time
	sessions map[string]string // token -> user id
	now      func() time.Time
}

func newAuthStore() *authStore {
	return &authStore{
		nonces:   make(map[string]time.Time),
		sessions: make(map[string]string),
		now:      time.Now,
	}
}

// IssueNonce mints a fresh nonce for signing.
func (a *authStore) IssueNonce() string {
	nonce := randomHex(16)
	a.mu.Lock()
	a.nonces[nonce] = a.now().Add(nonceTTL)
	a.mu.Unlock()
	return nonce
}

// Verify consumes the nonce, checks the signature, and opens a session.
func (a *authStore) Verify(req VerifyRequest) (string, error) {
	a.mu.Lock()
	expiry, ok := a.nonces[req.Nonce]
	if ok {
		delete(a.nonces, req.Nonce)
	}
	a.mu.Unlock()

	if !ok || a.now().After(expiry) {
		return "", errUnknownNonce
	}
	if !wallet.Verify(wallet.Chain(req.Chain), req.PublicKey, req.Nonce, req.Signature) {
		return "", errBadSignature
	}

	token := randomHex(24)
	a.mu.Lock()
	a.sessions[token] = req.AccountID
	a.mu.Unlock()
	return token, nil
}

// Validate resolves a session token to its user id.
func (a *authStore) Validate(token string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	userID, ok := a.sessions[token]
	return userID, ok
}

// Revoke ends a session.
func (a *authStore) Revoke(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(buf)
}
