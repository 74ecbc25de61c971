/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/models"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	weiDecimals          = 18
	transferGasLimit     = 21000
	defaultConfirmations = 4
)

// EVMClient captures the RPC surface used by the connector.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Compile-time checks.
var (
	_ chain.Connector = (*Connector)(nil)
	_ EVMClient       = (*ethclient.Client)(nil)
)

type Connector struct {
	cfg           models.ChainConfig
	client        EVMClient
	chainID       *big.Int
	platform      common.Address
	platformKey   *ecdsa.PrivateKey
	confirmations uint64
	pollInterval  time.Duration

	// serializes nonce selection and broadcast of platform transfers
	sendMu sync.Mutex
}

func NewConnector(ctx context.Context, cfg models.ChainConfig) (*Connector, error) {
	zap.L().Info("Connecting to Ethereum RPC", zap.String("rpc_url", cfg.RPCURL))
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return newConnectorWithClient(ctx, cfg, client)
}

func newConnectorWithClient(ctx context.Context, cfg models.ChainConfig, client EVMClient) (*Connector, error) {
	if !common.IsHexAddress(cfg.PlatformAddress) {
		return nil, fmt.Errorf("%w: platform address %q", chain.ErrInvalidAddress, cfg.PlatformAddress)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	c := &Connector{
		cfg:           cfg,
		client:        client,
		chainID:       chainID,
		platform:      common.HexToAddress(cfg.PlatformAddress),
		confirmations: cfg.Confirmations,
		pollInterval:  3 * time.Second,
	}
	if c.confirmations == 0 {
		c.confirmations = defaultConfirmations
	}

	if cfg.PlatformKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PlatformKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid ethereum platform key: %w", err)
		}
		if crypto.PubkeyToAddress(key.PublicKey) != c.platform {
			return nil, fmt.Errorf("ethereum platform key does not match platform address %s", c.platform.Hex())
		}
		c.platformKey = key
	} else {
		zap.L().Warn("Ethereum platform key not configured, refunds will fail", zap.String("platform", c.platform.Hex()))
	}

	zap.L().Info("Ethereum connector ready",
		zap.String("chain_id", chainID.String()),
		zap.Uint64("confirmations", c.confirmations))
	return c, nil
}

func (c *Connector) Symbol() string          { return c.cfg.Symbol }
func (c *Connector) PlatformAddress() string { return c.platform.Hex() }

func (c *Connector) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", chain.ErrInvalidAddress, address)
	}
	return nil
}

func (c *Connector) MinRefundCost() decimal.Decimal { return c.cfg.MinRefundCost }

func (c *Connector) signer() types.Signer {
	return types.LatestSignerForChainID(c.chainID)
}

func parseHash(signature string) (common.Hash, error) {
	raw, err := hexutil.Decode(signature)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %s", chain.ErrInvalidSignature, signature)
	}
	return common.BytesToHash(raw), nil
}

// Confirm waits for the receipt and until head-block+1 reaches the required
// confirmation depth.
func (c *Connector) Confirm(ctx context.Context, signature string, timeout time.Duration) (bool, error) {
	hash, err := parseHash(signature)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		depth, err := c.confirmationDepth(ctx, hash)
		if err != nil {
			zap.L().Debug("Confirmation check failed", zap.String("signature", signature), zap.Error(err))
		} else if depth >= c.confirmations {
			return true, nil
		}

		select {
		case <-ctx.Done():
			zap.L().Warn("Timed out waiting for Ethereum confirmations",
				zap.String("signature", signature),
				zap.Uint64("required", c.confirmations),
				zap.Duration("timeout", timeout))
			return false, nil
		case <-ticker.C:
		}
	}
}

func (c *Connector) confirmationDepth(ctx context.Context, hash common.Hash) (uint64, error) {
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return 0, err
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return 0, nil
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	if head == nil || head.Number == nil || head.Number.Cmp(receipt.BlockNumber) < 0 {
		return 0, nil
	}
	return new(big.Int).Sub(head.Number, receipt.BlockNumber).Uint64() + 1, nil
}

func (c *Connector) fetch(ctx context.Context, signature string) (*types.Transaction, *types.Receipt, common.Address, error) {
	hash, err := parseHash(signature)
	if err != nil {
		return nil, nil, common.Address{}, err
	}
	tx, pending, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, goethereum.NotFound) {
			return nil, nil, common.Address{}, fmt.Errorf("%w: %s", chain.ErrTxNotFound, signature)
		}
		return nil, nil, common.Address{}, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	if pending {
		return nil, nil, common.Address{}, fmt.Errorf("transaction %s is still pending", signature)
	}
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, nil, common.Address{}, fmt.Errorf("failed to get receipt %s: %w", signature, err)
	}
	sender, err := types.Sender(c.signer(), tx)
	if err != nil {
		return nil, nil, common.Address{}, fmt.Errorf("failed to recover sender of %s: %w", signature, err)
	}
	return tx, receipt, sender, nil
}

func (c *Connector) GetTransaction(ctx context.Context, signature string) (*models.ChainTransaction, error) {
	tx, receipt, sender, err := c.fetch(ctx, signature)
	if err != nil {
		return nil, err
	}

	result := &models.ChainTransaction{
		Signature: signature,
		Sender:    sender.Hex(),
		Amount:    weiToEth(tx.Value()),
		Success:   receipt.Status == types.ReceiptStatusSuccessful,
	}
	if tx.To() != nil {
		result.Recipient = tx.To().Hex()
	}
	if !result.Success {
		result.Err = "execution reverted"
	}
	return result, nil
}

// OwnBalanceDelta is +value for a successful incoming transfer and
// -(value + gasUsed*effectiveGasPrice) for a platform-sent transaction.
// Gas is charged even when the transaction reverted.
func (c *Connector) OwnBalanceDelta(ctx context.Context, signature string) (decimal.Decimal, bool) {
	tx, receipt, sender, err := c.fetch(ctx, signature)
	if err != nil {
		zap.L().Warn("Unable to read platform balance delta", zap.String("signature", signature), zap.Error(err))
		return decimal.Zero, false
	}
	return balanceDelta(c.platform, sender, tx, receipt), true
}

func balanceDelta(platform, sender common.Address, tx *types.Transaction, receipt *types.Receipt) decimal.Decimal {
	delta := new(big.Int)
	success := receipt.Status == types.ReceiptStatusSuccessful

	if tx.To() != nil && *tx.To() == platform && success {
		delta.Add(delta, tx.Value())
	}
	if sender == platform {
		gasPrice := receipt.EffectiveGasPrice
		if gasPrice == nil {
			gasPrice = tx.GasPrice()
		}
		gasCost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
		delta.Sub(delta, gasCost)
		if success {
			delta.Sub(delta, tx.Value())
		}
	}
	return weiToEth(delta)
}

func (c *Connector) TransferNative(ctx context.Context, to string, amount decimal.Decimal) models.TransferResult {
	if c.platformKey == nil {
		return models.TransferResult{Err: chain.ErrNoSigningKey}
	}
	if !common.IsHexAddress(to) {
		return models.TransferResult{Err: fmt.Errorf("%w: %s", chain.ErrInvalidAddress, to)}
	}
	value := ethToWei(amount)
	if value.Sign() <= 0 {
		return models.TransferResult{Err: fmt.Errorf("transfer amount %s is not positive", amount)}
	}

	signed, err := c.broadcastTransfer(ctx, common.HexToAddress(to), value)
	if err != nil {
		return models.TransferResult{Err: err}
	}
	txRef := signed.Hash().Hex()

	zap.L().Info("Ethereum transfer broadcast",
		zap.String("signature", txRef),
		zap.String("to", to),
		zap.String("amount", amount.String()))

	confirmed, err := c.Confirm(ctx, txRef, c.cfg.ConfirmTimeout)
	if err != nil {
		return models.TransferResult{TxRef: txRef, Err: err}
	}
	if !confirmed {
		return models.TransferResult{TxRef: txRef, Err: fmt.Errorf("transfer %s not confirmed within %s", txRef, c.cfg.ConfirmTimeout)}
	}

	receipt, err := c.client.TransactionReceipt(ctx, signed.Hash())
	if err != nil {
		return models.TransferResult{TxRef: txRef, Err: fmt.Errorf("failed to get receipt: %w", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return models.TransferResult{TxRef: txRef, Err: fmt.Errorf("transfer %s reverted", txRef)}
	}
	return models.TransferResult{Success: true, TxRef: txRef}
}

func (c *Connector) broadcastTransfer(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.platform)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, c.signer(), c.platformKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrBroadcastFailed, err)
	}
	return signed, nil
}

func (c *Connector) gasCost(ctx context.Context, units uint64) (decimal.Decimal, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get gas price: %w", err)
	}
	return weiToEth(new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(units))), nil
}

func (c *Connector) EstimateTransferFee(ctx context.Context) (decimal.Decimal, error) {
	return c.gasCost(ctx, transferGasLimit)
}

func (c *Connector) NetworkFee(ctx context.Context, _ models.AssetType) (decimal.Decimal, error) {
	return c.gasCost(ctx, c.cfg.MintGasUnits)
}

func (c *Connector) ContractDeployFee(ctx context.Context) (decimal.Decimal, error) {
	return c.gasCost(ctx, c.cfg.DeployGasUnits)
}

// StorageFee is zero: metadata is pinned off-chain.
func (c *Connector) StorageFee(_ context.Context, _ int) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func weiToEth(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// ethToWei truncates sub-wei precision.
func ethToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(weiDecimals).Truncate(0).BigInt()
}
