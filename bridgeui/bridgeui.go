// Package bridgeui is the page-object façade over the bridge swap page.
// It owns the DOM selector contract and exposes intent-level operations
// (connect a wallet, request a quote, submit a swap) so specs never touch
// raw selectors. All waiting is condition-based: operations poll the DOM
// until the expected state appears or the context deadline passes.
package bridgeui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/kembridge/bridgecheck/poll"
)

// Selector contract shared with the bridge frontend. Every element the
// specs touch is addressed by a data-testid attribute so markup and
// styling can change without breaking automation.
const (
	SelBridgeForm   = `[data-testid="bridge-form"]`
	SelAuthPrompt   = `[data-testid="auth-required-prompt"]`
	SelConnectBtn   = `[data-testid="wallet-connect-btn"]`
	SelTokenFrom    = `[data-testid="token-from"]`
	SelTokenTo      = `[data-testid="token-to"]`
	SelAmountInput  = `[data-testid="amount-input"]`
	SelQuoteDisplay = `[data-testid="quote-display"]`
	SelSwapSubmit   = `[data-testid="swap-submit"]`
	SelWSStatus     = `[data-testid="ws-status"]`
	SelTxStatus     = `[data-testid="tx-status"]`
)

// Connection states surfaced by the ws-status indicator.
const (
	WSDisconnected = "disconnected"
	WSConnected    = "connected"
	WSReconnecting = "reconnecting"
)

// Page wraps a loaded bridge page.
type Page struct {
	page   *rod.Page
	logger *slog.Logger
}

// Attach wraps an already-navigated rod page. The caller keeps ownership
// of the page lifecycle.
func Attach(page *rod.Page, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{page: page, logger: logger}
}

func (p *Page) element(ctx context.Context, sel string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Element(sel)
	if err != nil {
		return nil, fmt.Errorf("bridgeui: element %s: %w", sel, err)
	}
	return el, nil
}

// AuthRequired reports whether the page is prompting for wallet
// authentication. The prompt stays in the DOM after login but is hidden.
func (p *Page) AuthRequired(ctx context.Context) (bool, error) {
	el, err := p.element(ctx, SelAuthPrompt)
	if err != nil {
		return false, err
	}
	visible, err := el.Visible()
	if err != nil {
		return false, fmt.Errorf("bridgeui: auth prompt visibility: %w", err)
	}
	return visible, nil
}

// ConnectWallet clicks the connect button and waits for the auth prompt
// to clear. Sign-in races the wallet injection on freshly loaded pages,
// so a failed attempt is retried up to the given bound.
func (p *Page) ConnectWallet(ctx context.Context, attempts int, checkTimeout time.Duration) error {
	err := poll.Retry(ctx, attempts, checkTimeout, poll.DefaultInterval,
		func() error {
			btn, err := p.element(ctx, SelConnectBtn)
			if err != nil {
				return err
			}
			if err := btn.Click("left", 1); err != nil {
				return fmt.Errorf("bridgeui: click connect: %w", err)
			}
			return nil
		},
		func() (bool, error) {
			required, err := p.AuthRequired(ctx)
			if err != nil {
				return false, err
			}
			return !required, nil
		},
	)
	if err != nil {
		return fmt.Errorf("bridgeui: connect wallet: %w", err)
	}
	p.logger.Debug("wallet connected")
	return nil
}

// SelectTokens picks the source and destination tokens by their visible
// option text (the symbol).
func (p *Page) SelectTokens(ctx context.Context, from, to string) error {
	for sel, symbol := range map[string]string{SelTokenFrom: from, SelTokenTo: to} {
		el, err := p.element(ctx, sel)
		if err != nil {
			return err
		}
		if err := el.Select([]string{symbol}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("bridgeui: select %s in %s: %w", symbol, sel, err)
		}
	}
	return nil
}

// EnterAmount replaces the amount field's content.
func (p *Page) EnterAmount(ctx context.Context, amount string) error {
	el, err := p.element(ctx, SelAmountInput)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("bridgeui: select amount text: %w", err)
	}
	if err := el.Input(amount); err != nil {
		return fmt.Errorf("bridgeui: input amount: %w", err)
	}
	return nil
}

// WaitQuote waits until the quote display reaches the ready state and
// returns its text.
func (p *Page) WaitQuote(ctx context.Context) (string, error) {
	var text string
	err := poll.Until(ctx, poll.DefaultInterval, func() (bool, error) {
		el, err := p.element(ctx, SelQuoteDisplay)
		if err != nil {
			return false, err
		}
		state, err := el.Attribute("data-state")
		if err != nil {
			return false, fmt.Errorf("bridgeui: quote state: %w", err)
		}
		if state == nil || *state != "ready" {
			return false, nil
		}
		text, err = el.Text()
		if err != nil {
			return false, fmt.Errorf("bridgeui: quote text: %w", err)
		}
		return strings.TrimSpace(text) != "", nil
	})
	if err != nil {
		return "", fmt.Errorf("bridgeui: wait quote: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// SubmitSwap clicks the swap button once it is enabled.
func (p *Page) SubmitSwap(ctx context.Context) error {
	err := poll.Until(ctx, poll.DefaultInterval, func() (bool, error) {
		el, err := p.element(ctx, SelSwapSubmit)
		if err != nil {
			return false, err
		}
		disabled, err := el.Attribute("disabled")
		if err != nil {
			return false, fmt.Errorf("bridgeui: submit state: %w", err)
		}
		return disabled == nil, nil
	})
	if err != nil {
		return fmt.Errorf("bridgeui: wait submit enabled: %w", err)
	}
	el, err := p.element(ctx, SelSwapSubmit)
	if err != nil {
		return err
	}
	if err := el.Click("left", 1); err != nil {
		return fmt.Errorf("bridgeui: click submit: %w", err)
	}
	return nil
}

// WSStatus reads the current connection indicator state.
func (p *Page) WSStatus(ctx context.Context) (string, error) {
	return p.statusAttr(ctx, SelWSStatus)
}

// TxStatus reads the latest transaction status shown on the page.
func (p *Page) TxStatus(ctx context.Context) (string, error) {
	return p.statusAttr(ctx, SelTxStatus)
}

func (p *Page) statusAttr(ctx context.Context, sel string) (string, error) {
	el, err := p.element(ctx, sel)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute("data-status")
	if err != nil {
		return "", fmt.Errorf("bridgeui: status of %s: %w", sel, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// WaitWSStatus polls until the connection indicator shows want.
func (p *Page) WaitWSStatus(ctx context.Context, want string) error {
	err := poll.Until(ctx, poll.DefaultInterval, func() (bool, error) {
		got, err := p.WSStatus(ctx)
		if err != nil {
			return false, err
		}
		return got == want, nil
	})
	if err != nil {
		return fmt.Errorf("bridgeui: wait ws status %q: %w", want, err)
	}
	return nil
}

// WaitTxStatus polls until the transaction indicator shows want.
func (p *Page) WaitTxStatus(ctx context.Context, want string) error {
	err := poll.Until(ctx, poll.DefaultInterval, func() (bool, error) {
		got, err := p.TxStatus(ctx)
		if err != nil {
			return false, err
		}
		return got == want, nil
	})
	if err != nil {
		return fmt.Errorf("bridgeui: wait tx status %q: %w", want, err)
	}
	return nil
}
