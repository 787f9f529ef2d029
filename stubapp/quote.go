package stubapp

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kembridge/bridgecheck/idgen"
)

var newQuoteID = idgen.Prefixed("q_", idgen.NanoID(8))

// Token addresses, as the bridge maps symbols on each chain. ETH uses the
// aggregator's native-asset placeholder.
const (
	addrETH  = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	addrUSDT = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	addrNEAR = "wrap.near"
)

// ErrUnsupportedToken is returned for symbols outside the bridge's list.
var ErrUnsupportedToken = errors.New("stubapp: unsupported token symbol")

var errBadAmount = errors.New("stubapp: amount must be a positive number")

// TokenInfo describes one side of a quote.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Chain    string `json:"chain"`
	Decimals int    `json:"decimals"`
}

var tokens = map[string]TokenInfo{
	"ETH":  {Symbol: "ETH", Address: addrETH, Chain: "ethereum", Decimals: 18},
	"USDT": {Symbol: "USDT", Address: addrUSDT, Chain: "ethereum", Decimals: 6},
	"NEAR": {Symbol: "NEAR", Address: addrNEAR, Chain: "near", Decimals: 24},
}

// Fixed USD rates: the fixture quotes deterministically so specs can
// assert on the arithmetic instead of live markets.
var usdRates = map[string]float64{
	"ETH":  3200,
	"NEAR": 3.5,
	"USDT": 1,
}

const (
	bridgeFeeRate = 0.0015 // 0.15%
	slippageRate  = 0.005  // to_amount_min = to_amount * (1 - slippage)
	quoteTTL      = 30 * time.Second
)

// Gas fees in the destination chain's native token.
var gasFees = map[string]string{
	"ethereum": "0.000420",
	"near":     "0.001250",
}

// QuoteRequest asks how much to_token a from_token amount buys.
type QuoteRequest struct {
	FromToken  string `json:"from_token"`
	ToToken    string `json:"to_token"`
	FromAmount string `json:"from_amount"`
}

// QuoteResponse mirrors the bridge API's quote shape: decimal strings,
// a guaranteed minimum, and an expiry.
type QuoteResponse struct {
	QuoteID         string    `json:"quote_id"`
	FromToken       TokenInfo `json:"from_token"`
	ToToken         TokenInfo `json:"to_token"`
	FromAmount      string    `json:"from_amount"`
	ToAmount        string    `json:"to_amount"`
	ToAmountMin     string    `json:"to_amount_min"`
	EstimatedGasFee string    `json:"estimated_gas_fee"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// TokenBySymbol resolves a supported symbol, rejecting anything else.
func TokenBySymbol(symbol string) (TokenInfo, error) {
	info, ok := tokens[symbol]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: %q", ErrUnsupportedToken, symbol)
	}
	return info, nil
}

// Quote prices a cross-chain transfer at the fixed rates, minus the bridge
// fee.
func Quote(req QuoteRequest) (QuoteResponse, error) {
	from, err := TokenBySymbol(req.FromToken)
	if err != nil {
		return QuoteResponse{}, err
	}
	to, err := TokenBySymbol(req.ToToken)
	if err != nil {
		return QuoteResponse{}, err
	}
	if from.Symbol == to.Symbol {
		return QuoteResponse{}, fmt.Errorf("stubapp: from and to token must differ")
	}

	amount, err := strconv.ParseFloat(req.FromAmount, 64)
	if err != nil || amount <= 0 {
		return QuoteResponse{}, errBadAmount
	}

	toAmount := amount * usdRates[from.Symbol] / usdRates[to.Symbol] * (1 - bridgeFeeRate)
	toMin := toAmount * (1 - slippageRate)

	return QuoteResponse{
		QuoteID:         newQuoteID(),
		FromToken:       from,
		ToToken:         to,
		FromAmount:      formatAmount(amount),
		ToAmount:        formatAmount(toAmount),
		ToAmountMin:     formatAmount(toMin),
		EstimatedGasFee: gasFees[to.Chain],
		ExpiresAt:       time.Now().Add(quoteTTL),
	}, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
