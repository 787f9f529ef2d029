package stubapp

import (
	"errors"
	"sync"
	"time"

	"github.com/kembridge/bridgecheck/idgen"
)

var newTxID = idgen.Prefixed("tx_", idgen.NanoID(12))

// Transaction statuses, in progression order.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
)

// ErrUnknownTransaction is returned for status lookups of unknown ids.
var ErrUnknownTransaction = errors.New("stubapp: unknown transaction")

// SwapRequest initiates a cross-chain transfer of an accepted quote.
type SwapRequest struct {
	FromToken  string `json:"from_token"`
	ToToken    string `json:"to_token"`
	FromAmount string `json:"from_amount"`
	ToAmount   string `json:"to_amount"`
}

// Transaction is the fixture's view of an in-flight swap.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	FromToken  string    `json:"from_token"`
	ToToken    string    `json:"to_token"`
	FromAmount string    `json:"from_amount"`
	ToAmount   string    `json:"to_amount"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// swapEngine advances initiated swaps through the status progression and
// broadcasts each step over the hub. The interval is short by default so
// specs observe a full pending → confirmed → completed run in seconds.
type swapEngine struct {
	hub      *Hub
	interval time.Duration

	mu   sync.Mutex
	txs  map[string]*Transaction
	stop chan struct{}
}

func newSwapEngine(hub *Hub, interval time.Duration) *swapEngine {
	if interval <= 0 {
		interval = 700 * time.Millisecond
	}
	return &swapEngine{
		hub:      hub,
		interval: interval,
		txs:      make(map[string]*Transaction),
		stop:     make(chan struct{}),
	}
}

// Initiate records a swap and starts its progression.
func (e *swapEngine) Initiate(userID string, req SwapRequest) (*Transaction, error) {
	from, err := TokenBySymbol(req.FromToken)
	if err != nil {
		return nil, err
	}
	to, err := TokenBySymbol(req.ToToken)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &Transaction{
		ID:         newTxID(),
		UserID:     userID,
		Status:     StatusPending,
		FromToken:  from.Symbol,
		ToToken:    to.Symbol,
		FromAmount: req.FromAmount,
		ToAmount:   req.ToAmount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	e.mu.Lock()
	e.txs[tx.ID] = tx
	e.mu.Unlock()

	e.broadcast(tx, from.Chain, to.Chain)
	go e.progress(tx.ID, from.Chain, to.Chain)
	return tx, nil
}

// Status returns a copy of the transaction's current state.
func (e *swapEngine) Status(id string) (Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.txs[id]
	if !ok {
		return Transaction{}, ErrUnknownTransaction
	}
	return *tx, nil
}

// Close halts all progressions.
func (e *swapEngine) Close() {
	e.mu.Lock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	e.mu.Unlock()
}

func (e *swapEngine) progress(id, fromChain, toChain string) {
	for _, status := range []string{StatusConfirmed, StatusCompleted} {
		select {
		case <-e.stop:
			return
		case <-time.After(e.interval):
		}

		e.mu.Lock()
		tx, ok := e.txs[id]
		if !ok {
			e.mu.Unlock()
			return
		}
		tx.Status = status
		tx.UpdatedAt = time.Now()
		snapshot := *tx
		e.mu.Unlock()

		e.broadcast(&snapshot, fromChain, toChain)
	}
}

func (e *swapEngine) broadcast(tx *Transaction, fromChain, toChain string) {
	e.hub.BroadcastTransaction(TransactionStatusEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        tx.Status,
		FromChain:     fromChain,
		ToChain:       toChain,
		Amount:        tx.FromAmount,
		TokenSymbol:   tx.FromToken,
		Timestamp:     tx.UpdatedAt,
	})
}
