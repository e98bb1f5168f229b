package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidAddress  = errors.New("ledger: invalid address")
	ErrInvalidContract = errors.New("ledger: invalid contract address configured")
	ErrNoWallet        = errors.New("ledger: no signing wallet configured")
	ErrNotDeployed     = errors.New("ledger: no contract code at configured address")
	ErrUnreachable     = errors.New("ledger: endpoint unreachable")
)

const defaultProbeTimeout = 5 * time.Second

// Backend is the slice of the Ethereum RPC surface the accessor needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

// DialFunc opens a backend connection. Injectable for tests.
type DialFunc func(ctx context.Context, endpoint string) (Backend, error)

func dialEthclient(ctx context.Context, endpoint string) (Backend, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty RPC endpoint", ErrUnreachable)
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return client, nil
}

// ClientConfig carries the ledger connection settings read once at startup.
type ClientConfig struct {
	RPCEndpoint     string
	ContractAddress string
	ChainID         uint64
	// OperatorKey is an optional hex-encoded ECDSA private key. Without it
	// the client serves reads only and WriteAccessor fails with ErrNoWallet.
	OperatorKey  string
	ProbeTimeout time.Duration
}

// Client hands out contract accessors. The existence probe runs at most once
// per process; its outcome, including an explicit "no code here", is cached
// until Reset.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	dial   DialFunc
	key    *ecdsa.PrivateKey

	mu       sync.Mutex
	backend  Backend
	verified bool
	deployed bool
	cached   *Accessor
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithDialer replaces the backend dialer.
func WithDialer(d DialFunc) ClientOption {
	return func(c *Client) { c.dial = d }
}

// NewClient validates static configuration and returns an unconnected client.
// The RPC connection and existence probe are deferred to the first accessor.
func NewClient(cfg ClientConfig, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	c := &Client{cfg: cfg, logger: logger, dial: dialEthclient}
	if trimmed := strings.TrimSpace(cfg.OperatorKey); trimmed != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(trimmed, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse operator key: %w", err)
		}
		c.key = key
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadAccessor returns the shared read-only accessor. The first call performs
// exactly one code probe at the configured address; a transient probe failure
// is treated optimistically so a network hiccup cannot wedge every read
// behind repeated verification attempts.
func (c *Client) ReadAccessor(ctx context.Context) (Reader, error) {
	addr, err := c.contractAddress()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verified {
		if !c.deployed {
			return nil, ErrNotDeployed
		}
		return c.cached, nil
	}
	backend, err := c.backendLocked(ctx)
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	code, probeErr := backend.CodeAt(probeCtx, addr, nil)
	cancel()
	c.verified = true
	switch {
	case probeErr != nil:
		// Cannot tell whether the contract exists; assume it does rather
		// than blocking callers or re-probing on every request.
		c.deployed = true
		c.logger.Warn("contract code probe failed, continuing optimistically",
			"contract", addr.Hex(), "err", probeErr)
	case len(code) == 0:
		c.deployed = false
		c.logger.Error("no contract code at configured address", "contract", addr.Hex())
	default:
		c.deployed = true
	}
	if !c.deployed {
		return nil, ErrNotDeployed
	}
	acc, err := newAccessor(backend, addr, c.cfg.ChainID, nil)
	if err != nil {
		return nil, err
	}
	c.cached = acc
	return acc, nil
}

// WriteAccessor returns a fresh signer-bound accessor. It is never cached:
// the signing account and chain settings are re-read per call.
func (c *Client) WriteAccessor(ctx context.Context) (Writer, error) {
	if c.key == nil {
		return nil, ErrNoWallet
	}
	addr, err := c.contractAddress()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	backend, err := c.backendLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return newAccessor(backend, addr, c.cfg.ChainID, c.key)
}

// Reset drops the verification outcome, the cached accessor, and the RPC
// connection. The next accessor re-dials and re-probes. Invoked after a
// network switch.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
	c.verified = false
	c.deployed = false
	c.cached = nil
}

// NotDeployed reports whether the probe explicitly found no code at the
// configured address. Used for the operator-facing diagnostic on otherwise
// empty read results.
func (c *Client) NotDeployed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified && !c.deployed
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

func (c *Client) contractAddress() (common.Address, error) {
	if !ValidAddress(c.cfg.ContractAddress) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidContract, c.cfg.ContractAddress)
	}
	return common.HexToAddress(strings.TrimSpace(c.cfg.ContractAddress)), nil
}

func (c *Client) backendLocked(ctx context.Context) (Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	backend, err := c.dial(ctx, c.cfg.RPCEndpoint)
	if err != nil {
		return nil, err
	}
	c.backend = backend
	return backend, nil
}
