package ens

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RegistryAddress is the ENS registry deployed at the same address on mainnet
// and the common testnets.
const RegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

// DefaultTimeout bounds each resolution (both contract reads combined).
const DefaultTimeout = 5 * time.Second

// Function selectors for the two read-only calls.
var (
	resolverSelector = crypto.Keccak256([]byte("resolver(bytes32)"))[:4]
	addrSelector     = crypto.Keccak256([]byte("addr(bytes32)"))[:4]
)

// ContractCaller is the slice of the Ethereum client the resolver needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver performs forward ENS resolution: registry lookup for the node's
// resolver contract, then an address lookup against that resolver.
type Resolver struct {
	caller   ContractCaller
	registry common.Address
	timeout  time.Duration
	logger   *slog.Logger
	client   *ethclient.Client // set when constructed via Dial
}

// Dial connects to an Ethereum JSON-RPC provider and returns a resolver
// against the canonical registry.
func Dial(providerURL string, timeout time.Duration, logger *slog.Logger) (*Resolver, error) {
	client, err := ethclient.Dial(providerURL)
	if err != nil {
		return nil, fmt.Errorf("ens: failed to connect to provider: %w", err)
	}
	r := New(client, timeout, logger)
	r.client = client
	return r, nil
}

// Close releases the underlying RPC connection when one was dialed.
func (r *Resolver) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// New builds a resolver on an existing caller. Useful for tests.
func New(caller ContractCaller, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		caller:   caller,
		registry: common.HexToAddress(RegistryAddress),
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve maps an ENS name to an address. It returns ok=false when the name
// has no resolver, the resolver has no address record, or any contract call
// fails; transport errors are logged and swallowed because resolution is not
// required for authentication to succeed.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, bool) {
	node := Namehash(name)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resolverAddr, err := r.callForAddress(ctx, r.registry, resolverSelector, node)
	if err != nil {
		r.logger.Warn("ens registry lookup failed", "name", name, "error", err)
		return common.Address{}, false
	}
	if resolverAddr == (common.Address{}) {
		return common.Address{}, false
	}

	addr, err := r.callForAddress(ctx, resolverAddr, addrSelector, node)
	if err != nil {
		r.logger.Warn("ens resolver lookup failed", "name", name, "resolver", resolverAddr.Hex(), "error", err)
		return common.Address{}, false
	}
	if addr == (common.Address{}) {
		return common.Address{}, false
	}

	return addr, true
}

// callForAddress performs an eth_call with calldata `selector || node` and
// decodes a single ABI-encoded address return value.
func (r *Resolver) callForAddress(ctx context.Context, to common.Address, selector []byte, node [32]byte) (common.Address, error) {
	data := make([]byte, 0, len(selector)+len(node))
	data = append(data, selector...)
	data = append(data, node[:]...)

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("short return data: %d bytes", len(out))
	}

	// Addresses are right-aligned in the 32-byte return word.
	return common.BytesToAddress(out[:32]), nil
}
