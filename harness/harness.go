package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/kembridge/bridgecheck/artifacts"
	"github.com/kembridge/bridgecheck/bridgeui"
	"github.com/kembridge/bridgecheck/browser"
	"github.com/kembridge/bridgecheck/conlog"
	"github.com/kembridge/bridgecheck/idgen"
	"github.com/kembridge/bridgecheck/wallet"
)

// Harness owns one browser and one artifact store, shared by the
// sessions it opens. Each session gets its own tab, console buffer, and
// page object.
type Harness struct {
	cfg    *Config
	logger *slog.Logger

	mgr    *browser.Manager
	wallet *wallet.Wallet
	store  *artifacts.Store
	dumper *artifacts.Dumper

	runID string
}

// Session is one open bridge page with its capture attached.
type Session struct {
	Tab     *browser.Tab
	UI      *bridgeui.Page
	Console *conlog.Buffer

	cancel context.CancelFunc
}

// Close tears the session's tab down.
func (s *Session) Close() error {
	s.cancel()
	return s.Tab.Close()
}

// New builds a harness from config. Call Start before opening sessions
// and Close when done.
func New(cfg *Config, logger *slog.Logger) (*Harness, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := artifacts.Open(cfg.Artifacts.DBPath, logger)
	if err != nil {
		return nil, err
	}
	dumper, err := artifacts.NewDumper(cfg.Artifacts.DumpDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Harness{
		cfg:    cfg,
		logger: logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:       cfg.Browser.Remote,
			Headless:        cfg.Browser.Headless,
			NavigateTimeout: cfg.Browser.NavTimeout,
			Logger:          logger,
		}),
		wallet: wallet.New(logger),
		store:  store,
		dumper: dumper,
		runID:  idgen.Timestamped(idgen.NanoID(8))(),
	}, nil
}

// RunID identifies this harness instance's rows in the artifact store.
func (h *Harness) RunID() string { return h.runID }

// ClearWalletCache drops all cached wallet identities, so the next
// session authenticates as a fresh account.
func (h *Harness) ClearWalletCache() { h.wallet.ClearCache() }

// Store exposes the artifact store for reporting.
func (h *Harness) Store() *artifacts.Store { return h.store }

// Start launches (or attaches to) the browser.
func (h *Harness) Start(ctx context.Context) error {
	_, err := h.mgr.Start(ctx)
	return err
}

// Close shuts the browser down, applies artifact retention, and closes
// the store.
func (h *Harness) Close(ctx context.Context) error {
	h.mgr.Close()
	if _, err := h.store.Cleanup(ctx, h.cfg.Artifacts.Retention); err != nil {
		h.logger.Warn("artifact cleanup failed", "error", err)
	}
	return h.store.Close()
}

func (h *Harness) chain() wallet.Chain {
	if strings.EqualFold(h.cfg.Auth.Chain, string(wallet.ChainEthereum)) {
		return wallet.ChainEthereum
	}
	return wallet.ChainNEAR
}

// OpenBridge opens a fresh tab on the bridge page with the mock wallet
// injected and console capture attached before any page script runs.
func (h *Harness) OpenBridge(ctx context.Context) (*Session, error) {
	buf := &conlog.Buffer{}
	tabCtx, cancel := context.WithCancel(ctx)

	tab, err := browser.OpenTab(ctx, h.mgr, h.cfg.PageURL(), func(page *rod.Page) error {
		buf.Attach(tabCtx, page)
		injected, err := h.wallet.Setup(tabCtx, page, h.chain())
		if err != nil {
			return err
		}
		if !injected {
			h.logger.Warn("wallet probe inconclusive, page may race injection")
		}
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &Session{
		Tab:     tab,
		UI:      bridgeui.Attach(tab.Page, h.logger),
		Console: buf,
		cancel:  cancel,
	}, nil
}

// Authenticate drives the wallet sign-in on an open session, retrying
// per the configured bound.
func (h *Harness) Authenticate(ctx context.Context, s *Session) error {
	required, err := s.UI.AuthRequired(ctx)
	if err != nil {
		return err
	}
	if !required {
		return nil
	}
	return s.UI.ConnectWallet(ctx, h.cfg.Auth.Attempts, h.cfg.Auth.CheckTimeout)
}

// SmokeResult is what RunSmoke observed, independent of persistence.
type SmokeResult struct {
	Outcome   artifacts.Outcome
	Quote     string
	Lifecycle conlog.Lifecycle
}

// RunSmoke executes the full happy path once: open the page, sign in,
// wait for the socket, quote an ETH to NEAR swap, submit it, and wait
// for completion. Hard failures abort; indicator mismatches are counted
// as soft failures but do not stop the run. The console stream and the
// outcome land in the artifact store either way, and a page dump is
// written when anything went wrong.
func (h *Harness) RunSmoke(ctx context.Context) (*SmokeResult, error) {
	const spec = "smoke"
	res := &SmokeResult{Outcome: artifacts.Outcome{
		RunID:     h.runID,
		Spec:      spec,
		StartedAt: time.Now(),
	}}

	session, err := h.OpenBridge(ctx)
	if err != nil {
		return h.finishSmoke(ctx, res, nil, err)
	}
	defer session.Close()

	runErr := h.smokeSteps(ctx, session, res)
	return h.finishSmoke(ctx, res, session, runErr)
}

func (h *Harness) smokeSteps(ctx context.Context, s *Session, res *SmokeResult) error {
	if err := h.Authenticate(ctx, s); err != nil {
		return fmt.Errorf("harness: authenticate: %w", err)
	}

	wsCtx, cancel := context.WithTimeout(ctx, h.cfg.Waits.WebSocket)
	err := s.UI.WaitWSStatus(wsCtx, bridgeui.WSConnected)
	cancel()
	if err != nil {
		// The page remains usable without the socket; note and move on.
		res.Outcome.SoftFailures++
		h.logger.Warn("socket never reached connected state", "error", err)
	}

	if err := s.UI.SelectTokens(ctx, "ETH", "NEAR"); err != nil {
		return err
	}
	if err := s.UI.EnterAmount(ctx, "0.25"); err != nil {
		return err
	}

	quoteCtx, cancel := context.WithTimeout(ctx, h.cfg.Waits.Quote)
	res.Quote, err = s.UI.WaitQuote(quoteCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("harness: quote: %w", err)
	}
	if !strings.Contains(res.Quote, "NEAR") {
		res.Outcome.SoftFailures++
		h.logger.Warn("quote text missing destination symbol", "quote", res.Quote)
	}

	if err := s.UI.SubmitSwap(ctx); err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(ctx, h.cfg.Waits.Transaction)
	err = s.UI.WaitTxStatus(txCtx, "completed")
	cancel()
	if err != nil {
		return fmt.Errorf("harness: transaction: %w", err)
	}

	res.Lifecycle = s.Console.Lifecycle()
	if res.Lifecycle.Connects == 0 || res.Lifecycle.Subscriptions == 0 {
		res.Outcome.SoftFailures++
		h.logger.Warn("console lifecycle incomplete",
			"connects", res.Lifecycle.Connects,
			"subscriptions", res.Lifecycle.Subscriptions)
	}
	if n := len(s.Console.Exceptions()); n > 0 {
		res.Outcome.SoftFailures++
		h.logger.Warn("page threw exceptions", "count", n)
	}
	return nil
}

func (h *Harness) finishSmoke(ctx context.Context, res *SmokeResult, s *Session, runErr error) (*SmokeResult, error) {
	res.Outcome.FinishedAt = time.Now()
	res.Outcome.OK = runErr == nil
	if runErr != nil {
		res.Outcome.Detail = runErr.Error()
	}

	if s != nil {
		if err := h.store.SaveConsole(ctx, h.runID, res.Outcome.Spec, s.Console.All()); err != nil {
			h.logger.Warn("persist console failed", "error", err)
		}
		if runErr != nil || res.Outcome.SoftFailures > 0 {
			h.dumpSession(ctx, res.Outcome.Spec, s)
		}
	}
	if err := h.store.SaveOutcome(ctx, res.Outcome); err != nil {
		h.logger.Warn("persist outcome failed", "error", err)
	}
	return res, runErr
}

func (h *Harness) dumpSession(ctx context.Context, spec string, s *Session) {
	raw, err := s.Tab.HTML(ctx)
	if err != nil {
		h.logger.Warn("capture page failed", "error", err)
		return
	}
	if path, err := h.dumper.DumpPage(spec+"-"+h.runID, string(raw)); err != nil {
		h.logger.Warn("dump page failed", "error", err)
	} else {
		h.logger.Info("page dump written", "path", path)
	}
	if summary, err := artifacts.PageSummary(string(raw)); err == nil {
		h.logger.Info("page state", "summary", summary)
	}
}
