// Package wallet provides the mock wallet the specs authenticate with.
//
// A real wallet extension signs an authentication nonce with the user's key.
// The mock keeps the keys on the harness side: an injected page script
// defines window.mockWallet and forwards sign() calls to Go over a CDP
// binding, where the signature is produced and evaluated back into the
// page. Keypairs are cached per chain so repeated setups inside a spec run
// take the fast path; ClearCache between test cases forces fresh identities.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/crypto/sha3"
)

//go:embed wallet.js
var walletJS string

const signBinding = "__mock_wallet_sign"

// Chain selects the wallet flavour the page sees.
type Chain string

const (
	ChainNEAR     Chain = "near"
	ChainEthereum Chain = "ethereum"
)

// Keypair is one cached mock identity.
type Keypair struct {
	AccountID string
	Public    ed25519.PublicKey
	private   ed25519.PrivateKey
}

// PublicKeyHex returns the hex encoding of the public key, as the page and
// the verify endpoint exchange it.
func (k *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(k.Public)
}

// Wallet owns the mock identities and the page-side bridge.
type Wallet struct {
	mu     sync.Mutex
	cache  map[Chain]*Keypair
	logger *slog.Logger
}

// New creates a Wallet with an empty identity cache.
func New(logger *slog.Logger) *Wallet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wallet{cache: make(map[Chain]*Keypair), logger: logger}
}

// Keypair returns the cached identity for chain, generating one on first use.
func (w *Wallet) Keypair(chain Chain) (*Keypair, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if kp, ok := w.cache[chain]; ok {
		return kp, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}

	kp := &Keypair{Public: pub, private: priv, AccountID: accountID(chain, pub)}
	w.cache[chain] = kp
	return kp, nil
}

// ClearCache wipes all cached identities. Specs call this between test
// cases so authentication state never leaks across them.
func (w *Wallet) ClearCache() {
	w.mu.Lock()
	w.cache = make(map[Chain]*Keypair)
	w.mu.Unlock()
}

// Setup installs the mock wallet into the page and returns whether the
// page-side object is reachable. Call before navigation so the wallet is
// present when the application boots; the script also survives reloads.
func (w *Wallet) Setup(ctx context.Context, page *rod.Page, chain Chain) (bool, error) {
	kp, err := w.Keypair(chain)
	if err != nil {
		return false, err
	}

	if err := (proto.RuntimeAddBinding{Name: signBinding}).Call(page); err != nil {
		w.logger.Warn("wallet: add binding failed (may already exist)", "error", err)
	}
	go w.listenSign(ctx, page, chain, kp)

	cfg := fmt.Sprintf("window.__mock_wallet_cfg = {chain:%q,accountId:%q,publicKey:%q};",
		string(chain), kp.AccountID, kp.PublicKeyHex())

	// Persist across navigations and reloads.
	_, err = proto.PageAddScriptToEvaluateOnNewDocument{Source: cfg + "\n" + walletJS}.Call(page)
	if err != nil {
		return false, fmt.Errorf("wallet: install init script: %w", err)
	}

	// Install into the current document as well, if there is one.
	if _, err := page.Eval(cfg); err == nil {
		if _, err := page.Eval(walletJS); err != nil {
			w.logger.Warn("wallet: inject into current document failed", "error", err)
		}
	}

	res, err := page.Eval(`() => typeof window.mockWallet === "object" && window.mockWallet !== null`)
	if err != nil {
		return false, fmt.Errorf("wallet: probe: %w", err)
	}
	return res.Value.Bool(), nil
}

// listenSign serves sign() requests from the page until ctx is cancelled.
func (w *Wallet) listenSign(ctx context.Context, page *rod.Page, chain Chain, kp *Keypair) {
	page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != signBinding {
			return
		}

		nonce := e.Payload
		sig := w.Sign(chain, kp, nonce)
		if _, err := page.Eval(`(n, s) => window.__mock_wallet_resolve(n, s)`, nonce, sig); err != nil {
			w.logger.Warn("wallet: resolve signature failed", "error", err)
		}
	})()
}

// Sign produces the mock signature for a nonce. NEAR signs the raw nonce;
// Ethereum signs the personal_sign digest of it.
func (w *Wallet) Sign(chain Chain, kp *Keypair, nonce string) string {
	return hex.EncodeToString(ed25519.Sign(kp.private, signedMessage(chain, nonce)))
}

// Verify checks a mock signature against a hex public key. The fixture
// application's verify endpoint uses this; a real deployment performs the
// equivalent check against chain keys.
func Verify(chain Chain, publicKeyHex, nonce, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), signedMessage(chain, nonce), sig)
}

// signedMessage maps a nonce to the byte string actually signed.
func signedMessage(chain Chain, nonce string) []byte {
	if chain == ChainEthereum {
		// personal_sign prefix, digested with keccak-256.
		msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(nonce), nonce)
		digest := sha3.NewLegacyKeccak256()
		digest.Write([]byte(msg))
		return digest.Sum(nil)
	}
	return []byte(nonce)
}

// accountID derives a readable account name from the public key.
func accountID(chain Chain, pub ed25519.PublicKey) string {
	if chain == ChainEthereum {
		digest := sha3.NewLegacyKeccak256()
		digest.Write(pub)
		sum := digest.Sum(nil)
		return "0x" + hex.EncodeToString(sum[12:])
	}
	return fmt.Sprintf("mock-%s.testnet", hex.EncodeToString(pub[:4]))
}
