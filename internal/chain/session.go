package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ChainSafe/log15"
	"github.com/shopspring/decimal"
	"github.com/wrapgate/bridge/internal/config"
)

// UnrecognizedChainError is the wallet's "unknown network" rejection. Any other
// switch failure is fatal for the current step.
type UnrecognizedChainError struct {
	HexChainId string
}

func (e *UnrecognizedChainError) Error() string {
	return fmt.Sprintf("unrecognized chain %s (code %d)", e.HexChainId, config.ErrCodeUnrecognizedChain)
}

func (e *UnrecognizedChainError) Code() int { return config.ErrCodeUnrecognizedChain }

var ErrInsufficientFunds = errors.New("native balance below configured water line")

// Session owns the single active network connection. Every network switch in
// the process goes through it; switches are serialized behind its mutex since
// the wallet's active network is shared mutable state.
type Session struct {
	mu        sync.Mutex
	wallet    Wallet
	endpoints map[string]*config.ChainEndpoint
	active    *config.ChainEndpoint
	conn      Connection
	log       log15.Logger
}

func NewSession(wallet Wallet, endpoints []*config.ChainEndpoint, log log15.Logger) *Session {
	byKey := make(map[string]*config.ChainEndpoint, len(endpoints))
	for _, ep := range endpoints {
		byKey[ep.Key] = ep
	}
	return &Session{
		wallet:    wallet,
		endpoints: byKey,
		log:       log,
	}
}

// Endpoint returns the static configuration registered for chainKey.
func (s *Session) Endpoint(chainKey string) (*config.ChainEndpoint, error) {
	ep, ok := s.endpoints[chainKey]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for chain %s", chainKey)
	}
	return ep, nil
}

// SwitchTo asks the wallet to make chainKey the active network. If the wallet
// does not know the chain it is registered from static config and the switch
// is retried exactly once.
func (s *Session) SwitchTo(ctx context.Context, chainKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[chainKey]
	if !ok {
		return fmt.Errorf("no endpoint configured for chain %s", chainKey)
	}
	if s.active != nil && s.active.Key == chainKey {
		return nil
	}

	conn, err := s.wallet.SwitchChain(ctx, ep.HexChainId())
	if err != nil {
		var unrecognized *UnrecognizedChainError
		if !errors.As(err, &unrecognized) {
			return err
		}
		s.log.Info("Registering chain with wallet", "chain", ep.Name, "id", ep.HexChainId())
		if err = s.wallet.AddChain(ctx, ep); err != nil {
			return err
		}
		conn, err = s.wallet.SwitchChain(ctx, ep.HexChainId())
		if err != nil {
			return err
		}
	}

	s.active = ep
	s.conn = conn
	s.log.Debug("Switched active network", "chain", ep.Name, "id", ep.HexChainId())
	return nil
}

// Active returns the endpoint of the currently active network, nil before the
// first switch.
func (s *Session) Active() *config.ChainEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Conn returns the signing handle for the active network. Callers must call
// SwitchTo immediately before any contract call whose target chain differs
// from the last call.
func (s *Session) Conn() (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, errors.New("no active network, call SwitchTo first")
	}
	return s.conn, nil
}

// CheckFunds verifies the signer's native balance on the active chain sits
// above the endpoint's water line.
func (s *Session) CheckFunds(ctx context.Context) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	active := s.Active()

	waterLine, err := decimal.NewFromString(active.WaterLine)
	if err != nil {
		return fmt.Errorf("chain %s water line not a number: %s", active.Key, active.WaterLine)
	}
	if waterLine.IsZero() {
		return nil
	}

	balance, err := conn.BalanceAt(ctx, conn.From())
	if err != nil {
		return err
	}

	bal := decimal.NewFromBigInt(balance, 0)
	wei := decimal.New(1, int32(active.NativeCurrency.Decimals))
	s.log.Info("Get balance result", "account", conn.From(), "balance", bal.Div(wei), "wl", waterLine.Div(wei))
	if bal.Cmp(waterLine) < 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// BalanceFloat renders a wei amount in whole native units for notifications.
func BalanceFloat(amount *big.Int, decimals uint8) float64 {
	f, _ := decimal.NewFromBigInt(amount, 0).Div(decimal.New(1, int32(decimals))).Float64()
	return f
}
