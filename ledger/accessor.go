package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"getmechai/observability"
)

// Accessor executes contract reads and, when signer-bound, writes against one
// deployment. Read accessors are shared; write accessors are built per call.
type Accessor struct {
	backend Backend
	address common.Address
	abi     abi.ABI
	chainID *big.Int
	key     *ecdsa.PrivateKey
}

func newAccessor(backend Backend, address common.Address, chainID uint64, key *ecdsa.PrivateKey) (*Accessor, error) {
	parsed, err := contractABI()
	if err != nil {
		return nil, err
	}
	return &Accessor{
		backend: backend,
		address: address,
		abi:     parsed,
		chainID: new(big.Int).SetUint64(chainID),
		key:     key,
	}, nil
}

func (a *Accessor) rawCall(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &a.address, Data: data}, nil)
	observability.Ledger().ObserveRead(method, err)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return raw, nil
}

// Creator reads the creator record for addr. Deployments predating the
// owned-ID list return four outputs; those unpack without PostIDs.
func (a *Accessor) Creator(ctx context.Context, addr common.Address) (*CreatorRecord, error) {
	raw, err := a.rawCall(ctx, "creators", addr)
	if err != nil {
		return nil, err
	}
	outputs := a.abi.Methods["creators"].Outputs
	values, err := outputs.UnpackValues(raw)
	if err != nil {
		values, err = outputs[:4].UnpackValues(raw)
		if err != nil {
			return nil, fmt.Errorf("unpack creators: %w", err)
		}
	}
	rec := &CreatorRecord{SubscriptionPrice: big.NewInt(0)}
	if v, ok := values[0].(common.Address); ok {
		rec.Wallet = v
	}
	if v, ok := values[1].(string); ok {
		rec.Name = v
	}
	if v, ok := values[2].(*big.Int); ok {
		rec.SubscriptionPrice = v
	}
	if v, ok := values[3].(bool); ok {
		rec.IsRegistered = v
	}
	if len(values) > 4 {
		if ids, ok := values[4].([]*big.Int); ok {
			for _, id := range ids {
				if id != nil {
					rec.PostIDs = append(rec.PostIDs, id.Uint64())
				}
			}
		}
	}
	return rec, nil
}

// Post reads the post slot for id. Never-created slots come back with the
// zero-address creator.
func (a *Accessor) Post(ctx context.Context, id uint64) (*PostRecord, error) {
	raw, err := a.rawCall(ctx, "posts", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	values, err := a.abi.Unpack("posts", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack posts: %w", err)
	}
	rec := &PostRecord{ID: id, Contributions: big.NewInt(0)}
	if v, ok := values[0].(common.Address); ok {
		rec.Creator = v
	}
	if v, ok := values[1].(string); ok {
		rec.ContentHash = v
	}
	if v, ok := values[2].(bool); ok {
		rec.IsFree = v
	}
	if v, ok := values[3].(*big.Int); ok {
		rec.Contributions = v
	}
	return rec, nil
}

// Subscription reads the compound-key record for (subscriber, creator).
func (a *Accessor) Subscription(ctx context.Context, subscriber, creator common.Address) (*SubscriptionRecord, error) {
	raw, err := a.rawCall(ctx, "subscriptions", subscriber, creator)
	if err != nil {
		return nil, err
	}
	values, err := a.abi.Unpack("subscriptions", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack subscriptions: %w", err)
	}
	rec := &SubscriptionRecord{AutoPayBalance: big.NewInt(0)}
	if v, ok := values[0].(*big.Int); ok {
		rec.Expiry = v.Int64()
	}
	if v, ok := values[1].(*big.Int); ok {
		rec.AutoPayBalance = v
	}
	return rec, nil
}

// Earnings reads the accumulated withdrawable balance for addr, in wei.
func (a *Accessor) Earnings(ctx context.Context, addr common.Address) (*big.Int, error) {
	raw, err := a.rawCall(ctx, "creatorEarnings", addr)
	if err != nil {
		return nil, err
	}
	values, err := a.abi.Unpack("creatorEarnings", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack creatorEarnings: %w", err)
	}
	if v, ok := values[0].(*big.Int); ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

// IsSubscribed asks the contract's subscription-check primitive.
func (a *Accessor) IsSubscribed(ctx context.Context, subscriber, creator common.Address) (bool, error) {
	raw, err := a.rawCall(ctx, "isSubscribed", subscriber, creator)
	if err != nil {
		return false, err
	}
	values, err := a.abi.Unpack("isSubscribed", raw)
	if err != nil {
		return false, fmt.Errorf("unpack isSubscribed: %w", err)
	}
	v, _ := values[0].(bool)
	return v, nil
}

// transact signs and submits a contract call. Gas estimation failures carry
// the node's revert reason; those surface verbatim to the caller.
func (a *Accessor) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	if a.key == nil {
		return nil, ErrNoWallet
	}
	if value == nil {
		value = big.NewInt(0)
	}
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	from := crypto.PubkeyToAddress(a.key.PublicKey)
	nonce, err := a.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	msg := ethereum.CallMsg{From: from, To: &a.address, Value: value, Data: data}
	gas, err := a.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%s rejected: %w", method, err)
	}
	head, err := a.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	var txData types.TxData
	if head != nil && head.BaseFee != nil {
		tip, err := a.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas tip: %w", err)
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		txData = &types.DynamicFeeTx{
			ChainID:   a.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &a.address,
			Value:     value,
			Data:      data,
		}
	} else {
		price, err := a.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &a.address,
			Value:    value,
			Data:     data,
		}
	}
	signed, err := types.SignNewTx(a.key, types.LatestSignerForChainID(a.chainID), txData)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		observability.Ledger().ObserveWrite(method, err)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	observability.Ledger().ObserveWrite(method, nil)
	return signed, nil
}

func (a *Accessor) RegisterCreator(ctx context.Context, name string, price *big.Int) (*types.Transaction, error) {
	if price == nil {
		price = big.NewInt(0)
	}
	return a.transact(ctx, nil, "registerCreator", name, price)
}

func (a *Accessor) AddPost(ctx context.Context, contentHash string, isFree bool) (*types.Transaction, error) {
	return a.transact(ctx, nil, "addPost", contentHash, isFree)
}

func (a *Accessor) Contribute(ctx context.Context, postID uint64, amount *big.Int) (*types.Transaction, error) {
	return a.transact(ctx, amount, "contribute", new(big.Int).SetUint64(postID))
}

func (a *Accessor) Subscribe(ctx context.Context, creator common.Address, amount *big.Int) (*types.Transaction, error) {
	return a.transact(ctx, amount, "subscribe", creator)
}

func (a *Accessor) DepositAutoPay(ctx context.Context, creator common.Address, amount *big.Int) (*types.Transaction, error) {
	return a.transact(ctx, amount, "depositAutoPay", creator)
}

func (a *Accessor) RenewSubscription(ctx context.Context, creator common.Address) (*types.Transaction, error) {
	return a.transact(ctx, nil, "renewSubscription", creator)
}

func (a *Accessor) WithdrawEarnings(ctx context.Context) (*types.Transaction, error) {
	return a.transact(ctx, nil, "withdrawEarnings")
}
