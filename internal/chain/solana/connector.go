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

package solana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/transport"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	lamportDecimals = 9

	// Base fee charged per transaction signature.
	txFeeLamports = 5000
	// Fixed estimate for one refund transfer.
	refundFeeLamports = 5500

	// Mint, metadata and token accounts of an NFT.
	nftAccountBytes = 82 + 200 + 165
	nftMintTxCount  = 5

	mintAccountBytes     = 82
	metadataAccountBytes = 679
	tokenAccountBytes    = 165
	tokenMintTxCount     = 2
)

// RPCClient is the subset of *rpc.Client used by the connector.
type RPCClient interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
}

// Compile-time checks.
var (
	_ chain.Connector = (*Connector)(nil)
	_ RPCClient       = (*rpc.Client)(nil)
)

type Connector struct {
	cfg          models.ChainConfig
	client       RPCClient
	httpClient   *http.Client
	platform     solana.PublicKey
	platformKey  *solana.PrivateKey
	pollInterval time.Duration
}

func NewConnector(cfg models.ChainConfig, httpClient *http.Client) (*Connector, error) {
	zap.L().Info("Connecting to Solana RPC", zap.String("rpc_url", cfg.RPCURL))
	return newConnectorWithClient(cfg, rpc.New(cfg.RPCURL), httpClient)
}

func newConnectorWithClient(cfg models.ChainConfig, client RPCClient, httpClient *http.Client) (*Connector, error) {
	platform, err := solana.PublicKeyFromBase58(cfg.PlatformAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: platform address %q: %v", chain.ErrInvalidAddress, cfg.PlatformAddress, err)
	}

	c := &Connector{
		cfg:          cfg,
		client:       client,
		httpClient:   httpClient,
		platform:     platform,
		pollInterval: 2 * time.Second,
	}

	if cfg.PlatformKey != "" {
		pk, err := solana.PrivateKeyFromBase58(cfg.PlatformKey)
		if err != nil {
			return nil, fmt.Errorf("invalid solana platform key: %w", err)
		}
		if !pk.PublicKey().Equals(platform) {
			return nil, fmt.Errorf("solana platform key does not match platform address %s", platform)
		}
		c.platformKey = &pk
	} else {
		zap.L().Warn("Solana platform key not configured, refunds will fail", zap.String("platform", platform.String()))
	}

	return c, nil
}

func (c *Connector) Symbol() string          { return c.cfg.Symbol }
func (c *Connector) PlatformAddress() string { return c.platform.String() }

func (c *Connector) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %s", chain.ErrInvalidAddress, address)
	}
	return nil
}

func (c *Connector) MinRefundCost() decimal.Decimal {
	if c.cfg.MinRefundCost.IsPositive() {
		return c.cfg.MinRefundCost
	}
	return lamportsToSol(refundFeeLamports)
}

// Confirm polls the signature status until it is confirmed or finalized.
func (c *Connector) Confirm(ctx context.Context, signature string, timeout time.Duration) (bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false, fmt.Errorf("%w: %s", chain.ErrInvalidSignature, signature)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			zap.L().Debug("Signature status lookup failed", zap.String("signature", signature), zap.Error(err))
		} else if len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return true, nil
			}
		}

		select {
		case <-ctx.Done():
			zap.L().Warn("Timed out waiting for Solana confirmation",
				zap.String("signature", signature),
				zap.Duration("timeout", timeout))
			return false, nil
		case <-ticker.C:
		}
	}
}

func (c *Connector) fetch(ctx context.Context, signature string) (*rpc.GetTransactionResult, *solana.Transaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", chain.ErrInvalidSignature, signature)
	}

	maxVersion := uint64(0)
	out, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", chain.ErrTxNotFound, signature)
		}
		return nil, nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	if out == nil || out.Transaction == nil || out.Meta == nil {
		return nil, nil, fmt.Errorf("%w: %s", chain.ErrTxNotFound, signature)
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}
	return out, tx, nil
}

// GetTransaction reads the settled transfer. The sender is the fee payer;
// the recipient is the account credited the most lamports.
func (c *Connector) GetTransaction(ctx context.Context, signature string) (*models.ChainTransaction, error) {
	out, tx, err := c.fetch(ctx, signature)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(tx.Message.AccountKeys))
	for i, k := range tx.Message.AccountKeys {
		keys[i] = k.String()
	}
	changes := analyzeBalances(keys, out.Meta.PreBalances, out.Meta.PostBalances, c.platform.String())

	result := &models.ChainTransaction{
		Signature: signature,
		Sender:    changes.feePayer,
		Recipient: changes.recipient,
		Amount:    lamportsToSol(changes.received),
		Success:   out.Meta.Err == nil,
	}
	if out.Meta.Err != nil {
		result.Err = fmt.Sprintf("%v", out.Meta.Err)
	}
	return result, nil
}

// OwnBalanceDelta is post minus pre balance of the platform account.
func (c *Connector) OwnBalanceDelta(ctx context.Context, signature string) (decimal.Decimal, bool) {
	out, tx, err := c.fetch(ctx, signature)
	if err != nil {
		zap.L().Warn("Unable to read platform balance delta", zap.String("signature", signature), zap.Error(err))
		return decimal.Zero, false
	}
	for i, k := range tx.Message.AccountKeys {
		if !k.Equals(c.platform) {
			continue
		}
		if i >= len(out.Meta.PreBalances) || i >= len(out.Meta.PostBalances) {
			return decimal.Zero, false
		}
		delta := int64(out.Meta.PostBalances[i]) - int64(out.Meta.PreBalances[i])
		return lamportsToSol(delta), true
	}
	return decimal.Zero, false
}

// TransferNative sends lamports from the platform account and waits for confirmation.
func (c *Connector) TransferNative(ctx context.Context, to string, amount decimal.Decimal) models.TransferResult {
	if c.platformKey == nil {
		return models.TransferResult{Err: chain.ErrNoSigningKey}
	}
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return models.TransferResult{Err: fmt.Errorf("%w: %s", chain.ErrInvalidAddress, to)}
	}
	lamports := solToLamports(amount)
	if lamports <= 0 {
		return models.TransferResult{Err: fmt.Errorf("transfer amount %s is not positive", amount)}
	}

	bh, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return models.TransferResult{Err: fmt.Errorf("failed to get latest blockhash: %w", err)}
	}

	instruction := system.NewTransferInstruction(uint64(lamports), c.platform, recipient).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		bh.Value.Blockhash,
		solana.TransactionPayer(c.platform),
	)
	if err != nil {
		return models.TransferResult{Err: fmt.Errorf("failed to build transfer: %w", err)}
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.platform) {
			return c.platformKey
		}
		return nil
	}); err != nil {
		return models.TransferResult{Err: fmt.Errorf("failed to sign transfer: %w", err)}
	}

	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return models.TransferResult{Err: fmt.Errorf("%w: %v", chain.ErrBroadcastFailed, err)}
	}

	zap.L().Info("Solana transfer broadcast",
		zap.String("signature", sig.String()),
		zap.String("to", to),
		zap.String("amount", amount.String()))

	confirmed, err := c.Confirm(ctx, sig.String(), c.cfg.ConfirmTimeout)
	if err != nil {
		return models.TransferResult{TxRef: sig.String(), Err: err}
	}
	if !confirmed {
		return models.TransferResult{TxRef: sig.String(), Err: fmt.Errorf("transfer %s not confirmed within %s", sig, c.cfg.ConfirmTimeout)}
	}
	return models.TransferResult{Success: true, TxRef: sig.String()}
}

func (c *Connector) EstimateTransferFee(_ context.Context) (decimal.Decimal, error) {
	return lamportsToSol(refundFeeLamports), nil
}

// NetworkFee is transaction fees plus rent exemption for the accounts a mint creates.
func (c *Connector) NetworkFee(ctx context.Context, assetType models.AssetType) (decimal.Decimal, error) {
	var bytes uint64
	var txCount int64
	switch assetType {
	case models.AssetNFT:
		bytes, txCount = nftAccountBytes, nftMintTxCount
	case models.AssetToken:
		bytes, txCount = tokenAccountBytes, tokenMintTxCount
	default:
		return decimal.Zero, fmt.Errorf("unknown asset type %q", assetType)
	}

	rent, err := c.client.GetMinimumBalanceForRentExemption(ctx, bytes, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rent exemption: %w", err)
	}
	return lamportsToSol(int64(rent) + txCount*txFeeLamports), nil
}

// ContractDeployFee covers the mint and metadata accounts of a fungible token.
func (c *Connector) ContractDeployFee(ctx context.Context) (decimal.Decimal, error) {
	rent, err := c.client.GetMinimumBalanceForRentExemption(ctx, mintAccountBytes+metadataAccountBytes, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rent exemption: %w", err)
	}
	return lamportsToSol(int64(rent) + txFeeLamports), nil
}

// StorageFee asks the storage price endpoint for the upload price in lamports.
// Without an endpoint the configured per-byte rate is used.
func (c *Connector) StorageFee(ctx context.Context, payloadBytes int) (decimal.Decimal, error) {
	if payloadBytes <= 0 {
		return decimal.Zero, nil
	}
	if c.cfg.StoragePriceURL == "" || c.httpClient == nil {
		return c.cfg.StoragePricePerByte.Mul(decimal.NewFromInt(int64(payloadBytes))), nil
	}

	url := strings.TrimRight(c.cfg.StoragePriceURL, "/") + "/" + strconv.Itoa(payloadBytes)
	body, err := transport.GetText(ctx, c.httpClient, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get storage price: %w", err)
	}
	lamports, err := decimal.NewFromString(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid storage price %q: %w", body, err)
	}
	return lamports.Shift(-lamportDecimals), nil
}

type balanceChanges struct {
	feePayer  string
	recipient string
	received  int64
}

// analyzeBalances isolates the transfer carried by one transaction from its
// pre and post balances. When platform gained lamports it is the recipient,
// whatever else the transaction paid out; otherwise the largest gain wins.
func analyzeBalances(keys []string, pre, post []uint64, platform string) balanceChanges {
	var out balanceChanges
	if len(keys) > 0 {
		out.feePayer = keys[0]
	}
	n := len(keys)
	if len(pre) < n {
		n = len(pre)
	}
	if len(post) < n {
		n = len(post)
	}
	for i := 1; i < n; i++ {
		delta := int64(post[i]) - int64(pre[i])
		if keys[i] == platform && delta > 0 {
			out.received = delta
			out.recipient = keys[i]
			return out
		}
		if delta > out.received {
			out.received = delta
			out.recipient = keys[i]
		}
	}
	return out
}

func lamportsToSol(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -lamportDecimals)
}

// solToLamports truncates sub-lamport precision.
func solToLamports(sol decimal.Decimal) int64 {
	return sol.Shift(lamportDecimals).Truncate(0).IntPart()
}
