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

// Package chaintest provides a scriptable chain.Connector for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

var _ chain.Connector = (*Connector)(nil)

// Transfer is one TransferNative call that was executed.
type Transfer struct {
	To     string
	Amount decimal.Decimal
	TxRef  string
}

type Connector struct {
	mu sync.Mutex

	SymbolName string
	Platform   string

	Unconfirmed bool
	ConfirmErr  error
	ConfirmHook func(signature string)

	Txs    map[string]*models.ChainTransaction
	Deltas map[string]decimal.Decimal

	TransferFee    decimal.Decimal
	TransferFeeErr error
	TransferErr    error

	// TransferGas is what each outgoing transfer costs on top of its amount.
	TransferGas decimal.Decimal

	// HideTransferDelta makes OwnBalanceDelta unknown for outgoing transfers.
	HideTransferDelta bool

	MinRefund decimal.Decimal
	Network   decimal.Decimal
	Deploy    decimal.Decimal
	PerByte   decimal.Decimal
	FeeErr    error

	rejected  map[string]bool
	transfers []Transfer
}

func New(symbol, platform string) *Connector {
	return &Connector{
		SymbolName: symbol,
		Platform:   platform,
		Txs:        map[string]*models.ChainTransaction{},
		Deltas:     map[string]decimal.Decimal{},
	}
}

// AddPayment registers a settled transfer of amount from sender to recipient.
func (c *Connector) AddPayment(signature, sender, recipient string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Txs[signature] = &models.ChainTransaction{
		Signature: signature,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Success:   true,
	}
	if recipient == c.Platform {
		c.Deltas[signature] = amount
	}
}

// SetDelta overrides the platform balance delta reported for signature.
func (c *Connector) SetDelta(signature string, delta decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deltas[signature] = delta
}

// RejectAddress makes ValidateAddress fail for address.
func (c *Connector) RejectAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = map[string]bool{}
	}
	c.rejected[address] = true
}

func (c *Connector) Transfers() []Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transfer(nil), c.transfers...)
}

func (c *Connector) Symbol() string          { return c.SymbolName }
func (c *Connector) PlatformAddress() string { return c.Platform }

func (c *Connector) ValidateAddress(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if address == "" || c.rejected[address] {
		return fmt.Errorf("%w: %q", chain.ErrInvalidAddress, address)
	}
	return nil
}

func (c *Connector) Confirm(_ context.Context, signature string, _ time.Duration) (bool, error) {
	if c.ConfirmHook != nil {
		c.ConfirmHook(signature)
	}
	if c.ConfirmErr != nil {
		return false, c.ConfirmErr
	}
	return !c.Unconfirmed, nil
}

func (c *Connector) GetTransaction(_ context.Context, signature string) (*models.ChainTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Txs[signature]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrTxNotFound, signature)
	}
	copied := *tx
	return &copied, nil
}

func (c *Connector) TransferNative(_ context.Context, to string, amount decimal.Decimal) models.TransferResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TransferErr != nil {
		return models.TransferResult{Err: c.TransferErr}
	}
	ref := fmt.Sprintf("%s-transfer-%d", c.SymbolName, len(c.transfers)+1)
	c.transfers = append(c.transfers, Transfer{To: to, Amount: amount, TxRef: ref})
	if !c.HideTransferDelta {
		c.Deltas[ref] = amount.Add(c.TransferGas).Neg()
	}
	return models.TransferResult{Success: true, TxRef: ref}
}

func (c *Connector) OwnBalanceDelta(_ context.Context, signature string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.Deltas[signature]
	return d, ok
}

func (c *Connector) EstimateTransferFee(context.Context) (decimal.Decimal, error) {
	return c.TransferFee, c.TransferFeeErr
}

func (c *Connector) MinRefundCost() decimal.Decimal { return c.MinRefund }

func (c *Connector) NetworkFee(context.Context, models.AssetType) (decimal.Decimal, error) {
	return c.Network, c.FeeErr
}

func (c *Connector) ContractDeployFee(context.Context) (decimal.Decimal, error) {
	return c.Deploy, c.FeeErr
}

func (c *Connector) StorageFee(_ context.Context, payloadBytes int) (decimal.Decimal, error) {
	return c.PerByte.Mul(decimal.NewFromInt(int64(payloadBytes))), c.FeeErr
}
