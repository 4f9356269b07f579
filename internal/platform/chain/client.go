// Package chain implements the domain contract gateways on an EVM JSON-RPC
// node using go-ethereum.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/marketkeeper/internal/crypto"
	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

// gasHeadroomPct is added on top of node gas estimates.
const gasHeadroomPct = 20

// Backend is the subset of the JSON-RPC API the gateways use.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Config holds node and transaction parameters.
type Config struct {
	RPCURL string
	// GasLimit fixes the gas of every transaction; 0 estimates per call.
	GasLimit uint64
}

// Client binds contract addresses to gateways sharing one backend and one
// signing account.
type Client struct {
	backend  Backend
	signer   *crypto.Signer
	gasLimit uint64
	closer   func()
	logger   *slog.Logger
}

// Dial connects to the node at cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if chainID.Cmp(signer.ChainID()) != 0 {
		ec.Close()
		return nil, fmt.Errorf("chain: node reports chain %s, signer configured for %s", chainID, signer.ChainID())
	}

	c := NewClient(ec, signer, cfg, logger)
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, signer *crypto.Signer, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		backend:  backend,
		signer:   signer,
		gasLimit: cfg.GasLimit,
		logger:   logger,
	}
}

// Close releases the node connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// CryptoFactory binds the crypto market factory at address.
func (c *Client) CryptoFactory(address string) (domain.CryptoMarketFactory, error) {
	addr, err := parseAddress("contractAddress", address)
	if err != nil {
		return nil, err
	}
	return &cryptoFactory{contract: c.bind(addr, cryptoFactoryABI)}, nil
}

// SportsFactory binds the team or fighter factory at address using the call
// shape of profile.
func (c *Client) SportsFactory(profile domain.SportProfile, address string) (domain.SportsMarketFactory, error) {
	addr, err := parseAddress("contractAddress", address)
	if err != nil {
		return nil, err
	}
	var parsed abi.ABI
	switch profile.Shape {
	case domain.ShapeTeamWithLines:
		parsed = teamLinesFactoryABI
	case domain.ShapeTeamMoneyline:
		parsed = teamMoneylineFactoryABI
	case domain.ShapeFighter:
		parsed = fighterFactoryABI
	default:
		return nil, domain.Configurationf("sport", string(profile.Sport), "no event factory for call shape %s", profile.Shape)
	}
	return &sportsFactory{contract: c.bind(addr, parsed), shape: profile.Shape}, nil
}

// Feed binds the AggregatorV3 price feed at address.
func (c *Client) Feed(address string) (domain.OracleFeed, error) {
	addr, err := parseAddress("priceFeed", address)
	if err != nil {
		return nil, err
	}
	return &aggregatorFeed{contract: c.bind(addr, aggregatorV3ABI)}, nil
}

// Account returns the signing account.
func (c *Client) Account() domain.Account {
	return account{c: c}
}

func (c *Client) bind(addr common.Address, parsed abi.ABI) *boundContract {
	return &boundContract{address: addr, abi: parsed, client: c}
}

var _ domain.ContractBinder = (*Client)(nil)

type account struct{ c *Client }

func (a account) Address() string { return a.c.signer.Address().Hex() }

// Nonce returns the pending nonce so transactions already in the pool are
// not reused.
func (a account) Nonce(ctx context.Context) (uint64, error) {
	n, err := a.c.backend.PendingNonceAt(ctx, a.c.signer.Address())
	if err != nil {
		return 0, fmt.Errorf("chain: pending nonce: %w", err)
	}
	return n, nil
}

// boundContract packs calls for one contract address.
type boundContract struct {
	address common.Address
	abi     abi.ABI
	client  *Client
}

// call runs a read-only method and returns its unpacked outputs.
func (b *boundContract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	raw, err := b.client.backend.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, b.address.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("chain: call %s on %s: empty result (no contract?)", method, b.address.Hex())
	}
	out, err := b.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return out, nil
}

// transact signs and broadcasts method with an explicit nonce.
func (b *boundContract) transact(ctx context.Context, nonce uint64, method string, args ...any) (domain.TxHandle, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	tx, err := b.client.buildTx(ctx, b.address, data, nonce)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: %s: %w", method, err)
	}
	signed, err := b.client.signer.SignTx(tx)
	if err != nil {
		return domain.TxHandle{}, err
	}
	if err := b.client.backend.SendTransaction(ctx, signed); err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: send %s nonce %d: %w", method, nonce, err)
	}

	b.client.logger.DebugContext(ctx, "chain: transaction broadcast",
		slog.String("method", method),
		slog.String("to", b.address.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", signed.Gas()),
		slog.String("tx_hash", signed.Hash().Hex()),
	)
	return domain.TxHandle{Hash: signed.Hash().Hex(), Nonce: nonce}, nil
}

// buildTx prices a transaction as EIP-1559 when the node reports a base fee
// and as legacy otherwise.
func (c *Client) buildTx(ctx context.Context, to common.Address, data []byte, nonce uint64) (*types.Transaction, error) {
	from := c.signer.Address()

	gas := c.gasLimit
	if gas == 0 {
		est, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gas = est + est*gasHeadroomPct/100
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if head.BaseFee == nil {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}), nil
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, domain.Configurationf(field, s, "not a hex address")
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, domain.Configurationf(field, s, "zero address")
	}
	return addr, nil
}

var errUnexpectedOutput = errors.New("chain: unexpected output shape")
