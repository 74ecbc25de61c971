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

package mint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chainportal-mint-go/internal/chain"
	"chainportal-mint-go/internal/fees"
	"chainportal-mint-go/internal/metrics"
	"chainportal-mint-go/internal/minter"
	"chainportal-mint-go/internal/models"
	"chainportal-mint-go/internal/refund"
	"chainportal-mint-go/internal/storage"
	"chainportal-mint-go/internal/store"
	"chainportal-mint-go/internal/verifier"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Connectors interface {
	Get(symbol string) (chain.Connector, error)
}

type FeeCalculator interface {
	Required(ctx context.Context, chain string, assetType models.AssetType, payloadBytes int) (*fees.Breakdown, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, conn chain.Connector, signature string, required decimal.Decimal, assetType models.AssetType) (*verifier.Result, error)
}

type Refunder interface {
	Refund(ctx context.Context, req refund.Request) refund.Outcome
}

type Uploader interface {
	UploadMedia(ctx context.Context, chain string, data []byte, name, contentType string) (storage.Upload, error)
	UploadJSON(ctx context.Context, chain string, doc any) (storage.Upload, error)
}

type Minter interface {
	Mint(ctx context.Context, params minter.MintParams) (minter.Result, error)
	DeployContract(ctx context.Context, chain string, meta *models.TokenMetadata, uri string) (minter.Deployment, error)
}

// Deps are the collaborators of an Orchestrator. Mirror and Metrics may be nil.
type Deps struct {
	Ledger     store.LedgerStore
	Connectors Connectors
	Fees       FeeCalculator
	Verifier   PaymentVerifier
	Refunder   Refunder
	Uploader   Uploader
	Minter     Minter
	Mirror     refund.Mirror
	Metrics    *metrics.PipelineMetrics
}

// Orchestrator runs payment-gated minting pipelines. Each pipeline runs to a
// terminal state on its own goroutine, independent of whoever started it.
type Orchestrator struct {
	deps Deps
	cfg  models.PipelineConfig
	wg   sync.WaitGroup
}

func NewOrchestrator(deps Deps, cfg models.PipelineConfig) *Orchestrator {
	if cfg.DeltaTimeout <= 0 {
		cfg.DeltaTimeout = 30 * time.Second
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// Start launches a pipeline for req and returns its ordered event stream. The
// channel is closed after the event with Done set. Callers may stop reading
// at any time; the pipeline never blocks on them.
func (o *Orchestrator) Start(req models.MintRequest) <-chan models.Event {
	events := make(chan models.Event, StepCompleted+1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(events)
		o.run(context.Background(), req, events)
	}()
	return events
}

// Wait blocks until every started pipeline has terminated or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// costItem is one platform-paid transaction whose real cost is its observed
// balance delta, falling back to estimate.
type costItem struct {
	txRef    string
	estimate decimal.Decimal
}

type pipeline struct {
	o       *Orchestrator
	req     models.MintRequest
	conn    chain.Connector
	events  chan<- models.Event
	logger  *zap.Logger
	fee     *fees.Breakdown
	payment *verifier.Result
	rewards []store.RewardParams
	costs   []costItem
}

func (o *Orchestrator) run(ctx context.Context, req models.MintRequest, events chan<- models.Event) {
	req.Chain = strings.ToUpper(strings.TrimSpace(req.Chain))
	pipelineID := uuid.New().String()
	ctx = models.WithPipelineContext(ctx, &models.PipelineContext{
		PipelineId: pipelineID,
		Signature:  req.PaymentSignature,
		Chain:      req.Chain,
		AssetType:  req.AssetType,
	})

	p := &pipeline{
		o:      o,
		req:    req,
		events: events,
		logger: zap.L().With(
			zap.String("pipeline_id", pipelineID),
			zap.String("signature", req.PaymentSignature),
			zap.String("chain", req.Chain),
			zap.String("asset_type", string(req.AssetType))),
	}

	start := time.Now()
	o.deps.Metrics.Started(req.Chain, string(req.AssetType))
	p.logger.Info("Mint pipeline started", zap.Int("payload_bytes", req.PayloadSize()))

	outcome := "completed"
	if e := p.execute(ctx); e != nil {
		outcome = string(e.Kind)
		p.fail(e)
	}

	o.deps.Metrics.Finished(req.Chain, string(req.AssetType), outcome)
	p.logger.Info("Mint pipeline finished", zap.String("outcome", outcome), zap.Duration("elapsed", time.Since(start)))
}

func (p *pipeline) execute(ctx context.Context) *Error {
	deps := p.o.deps

	conn, err := deps.Connectors.Get(p.req.Chain)
	if err != nil {
		return &Error{Kind: KindInvalidMetadata, Step: StepValidation, Message: fmt.Sprintf("Unsupported blockchain %q.", p.req.Chain), Err: err}
	}
	p.conn = conn
	if p.req.PaymentSignature == "" {
		return &Error{Kind: KindInvalidMetadata, Step: StepValidation, Message: "A payment transaction signature is required."}
	}

	if e := p.lock(ctx); e != nil {
		return e
	}

	done := p.stage("validation")
	err = validate(p.req)
	done()
	if err != nil {
		p.logger.Warn("Metadata validation failed", zap.String("stage", "validation"), zap.Error(err))
		_, verr := deps.Verifier.Verify(ctx, conn, p.req.PaymentSignature, decimal.Zero, p.req.AssetType)
		return p.refusal(ctx, KindInvalidMetadata, StepValidation, err.Error(), verr)
	}
	p.emit(StepValidation, "Metadata validated")

	done = p.stage("fee")
	stageCtx, cancel := p.stageContext(ctx)
	p.fee, err = deps.Fees.Required(stageCtx, p.req.Chain, p.req.AssetType, p.req.PayloadSize())
	cancel()
	done()
	if err != nil {
		p.logger.Error("Fee calculation failed", zap.String("stage", "fee"), zap.Error(err))
		_, verr := deps.Verifier.Verify(ctx, conn, p.req.PaymentSignature, decimal.Zero, p.req.AssetType)
		return p.refusal(ctx, KindFeeUnavailable, StepPayment, "Unable to calculate the total price for your mint.", verr)
	}
	p.emit(StepPayment, fmt.Sprintf("Total price is %s %s, waiting for payment confirmation", p.fee.Total, p.req.Chain))

	done = p.stage("payment")
	p.payment, err = deps.Verifier.Verify(ctx, conn, p.req.PaymentSignature, p.fee.Total, p.req.AssetType)
	done()
	if err != nil {
		return p.paymentError(ctx, err)
	}
	p.emit(StepPaymentValidated, "Payment validated")

	done = p.stage("upload")
	uri, err := p.upload(ctx)
	done()
	if err != nil {
		p.logger.Error("Metadata upload failed", zap.String("stage", "upload"), zap.Error(err))
		return p.compensate(ctx, KindUploadFailed, StepUploaded, "Metadata upload failed.", "upload failed", p.fee.Platform, err)
	}
	p.emit(StepUploaded, uri)

	done = p.stage("mint")
	result, err := p.mint(ctx, uri)
	done()
	if err != nil {
		p.logger.Error("Minting failed", zap.String("stage", "mint"), zap.Error(err))
		consumed := p.fee.Platform.Add(p.spent(ctx))
		return p.compensate(ctx, KindMintFailed, StepMinted, "Minting failed.", "mint failed", consumed, err)
	}
	minted := result.AssetID
	if minted == "" {
		minted = result.TxRef
	}
	p.emit(StepMinted, minted)

	id, e := p.complete(ctx)
	if e != nil {
		return e
	}
	p.send(models.Event{StepID: StepCompleted, Result: id, Done: true})
	return nil
}

func (p *pipeline) lock(ctx context.Context) *Error {
	err := p.o.deps.Ledger.TryLock(ctx, p.req.PaymentSignature)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDuplicateSignature):
		p.o.deps.Metrics.LockRejected("duplicate")
		return &Error{Kind: KindDuplicatePayment, Step: StepValidation, Message: "This payment was already used.", Err: err}
	case errors.Is(err, store.ErrLockHeld):
		p.o.deps.Metrics.LockRejected("in_progress")
		return &Error{Kind: KindAlreadyProcessing, Step: StepValidation, Message: "This payment is already being processed.", Err: err}
	default:
		p.o.deps.Metrics.LockRejected("error")
		return &Error{Kind: KindAlreadyProcessing, Step: StepValidation, Message: "Unable to start processing this payment. Please try again later.", Err: err}
	}
}

func (p *pipeline) releaseLock(ctx context.Context) {
	if err := p.o.deps.Ledger.ReleaseLock(ctx, p.req.PaymentSignature); err != nil {
		p.logger.Warn("Failed to release payment lock", zap.Error(err))
	}
}

// refusal reports a failure found before the fee was known. The payment has
// been run through the verifier with no required amount, which refunds it
// when it reached the platform.
func (p *pipeline) refusal(ctx context.Context, kind Kind, step int, message string, verr error) *Error {
	e := &Error{Kind: kind, Step: step, Message: message}

	var insufficient *verifier.InsufficientPaymentError
	switch {
	case errors.As(verr, &insufficient):
		e.Err = verr
		if insufficient.Refund != nil {
			e.Refund = insufficient.Refund
			e.Message = message + " " + insufficient.Refund.Message
			if !insufficient.Refund.Refunded {
				e.Kind = KindRefundFailed
			}
		} else {
			e.Message = message + " " + p.unrefunded(ctx, insufficient)
		}
	case verr != nil:
		e.Err = verr
		e.Message = message + " No payment was received, so no refund was attempted."
		p.releaseLock(ctx)
	}
	return e
}

func (p *pipeline) paymentError(ctx context.Context, err error) *Error {
	var insufficient *verifier.InsufficientPaymentError
	switch {
	case errors.As(err, &insufficient):
		msg := fmt.Sprintf("Your payment of %s %s is below the required %s %s.", insufficient.Received, p.req.Chain, insufficient.Required, p.req.Chain)
		e := &Error{Kind: KindInsufficientPayment, Step: StepPayment, Err: err}
		if insufficient.Refund == nil {
			e.Message = msg + " " + p.unrefunded(ctx, insufficient)
			return e
		}
		e.Refund = insufficient.Refund
		e.Message = msg + " " + insufficient.Refund.Message
		if !insufficient.Refund.Refunded {
			e.Kind = KindRefundFailed
		}
		return e
	case errors.Is(err, verifier.ErrPaymentTransactionFailed):
		p.releaseLock(ctx)
		return &Error{Kind: KindPaymentTransactionFailed, Step: StepPayment, Message: "Your payment transaction failed on chain, no funds were received.", Err: err}
	case errors.Is(err, verifier.ErrWrongRecipient):
		p.releaseLock(ctx)
		return &Error{Kind: KindWrongRecipient, Step: StepPayment, Message: "Your payment was not sent to the platform address, so it cannot be used or refunded.", Err: err}
	default:
		p.releaseLock(ctx)
		return &Error{Kind: KindPaymentUnconfirmed, Step: StepPayment, Message: "Your payment could not be confirmed in time. Please try again once it is confirmed.", Err: err}
	}
}

// unrefunded explains an insufficient payment that was not sent back. When
// nothing reached the platform the lock is released so the signature can be
// used again once it carries funds.
func (p *pipeline) unrefunded(ctx context.Context, insufficient *verifier.InsufficientPaymentError) string {
	switch {
	case insufficient.NothingReceived():
		p.releaseLock(ctx)
		return "No funds were received."
	case insufficient.RecordErr != nil:
		return fmt.Sprintf("The amount is too small to be refunded and could not be recorded. Please contact support with your payment signature %s.", p.req.PaymentSignature)
	default:
		return "The amount is too small to be refunded."
	}
}

// compensate refunds a verified payment minus consumed and folds the outcome
// into the returned error.
func (p *pipeline) compensate(ctx context.Context, kind Kind, step int, message, reason string, consumed decimal.Decimal, cause error) *Error {
	out := p.o.deps.Refunder.Refund(ctx, refund.Request{
		Chain:            p.req.Chain,
		AssetType:        p.req.AssetType,
		PaymentSignature: p.req.PaymentSignature,
		Recipient:        p.payment.Sender,
		Paid:             p.payment.Received,
		Consumed:         consumed,
		Reason:           reason,
		PriorRewards:     p.rewards,
	})

	e := &Error{Kind: kind, Step: step, Message: message + " " + out.Message, Refund: &out, Err: cause}
	if !out.Refunded {
		e.Kind = KindRefundFailed
	}
	return e
}

func (p *pipeline) upload(ctx context.Context) (string, error) {
	deps := p.o.deps
	stageCtx, cancel := p.stageContext(ctx)
	defer cancel()

	var (
		media       []byte
		name, ctype string
	)
	if p.req.AssetType == models.AssetToken {
		media, name, ctype = p.req.Token.Media, p.req.Token.MediaName, p.req.Token.MediaContentType
	} else {
		media, name, ctype = p.req.NFT.Media, p.req.NFT.MediaName, p.req.NFT.MediaContentType
	}

	file, err := deps.Uploader.UploadMedia(stageCtx, p.req.Chain, media, name, ctype)
	if err != nil {
		return "", err
	}
	p.track(models.RewardMetadataUpload, file.TxRef, p.fee.Storage)

	var doc any
	if p.req.AssetType == models.AssetToken {
		doc = storage.NewTokenDocument(p.req.Token, file.URI)
	} else {
		doc = storage.NewNFTDocument(p.req.NFT, file.URI, p.req.Chain == "ETH")
	}

	meta, err := deps.Uploader.UploadJSON(stageCtx, p.req.Chain, doc)
	if err != nil {
		return "", err
	}
	p.track(models.RewardMetadataUpload, meta.TxRef, decimal.Zero)

	p.logger.Info("Metadata uploaded", zap.String("stage", "upload"), zap.String("uri", meta.URI))
	return meta.URI, nil
}

func (p *pipeline) mint(ctx context.Context, uri string) (minter.Result, error) {
	deps := p.o.deps
	stageCtx, cancel := p.stageContext(ctx)
	defer cancel()

	if err := p.conn.ValidateAddress(p.payment.Sender); err != nil {
		return minter.Result{}, fmt.Errorf("owner address: %w", err)
	}

	params := minter.MintParams{
		Chain:     p.req.Chain,
		AssetType: p.req.AssetType,
		Owner:     p.payment.Sender,
		URI:       uri,
	}

	if p.req.AssetType == models.AssetToken {
		token := p.req.Token
		dep, err := deps.Minter.DeployContract(stageCtx, p.req.Chain, token, uri)
		if err != nil {
			return minter.Result{}, err
		}
		p.track(models.RewardContractDeployment, dep.TxRef, pick(dep.OnChainCost, p.fee.Deploy))
		params.ContractAddress = dep.ContractAddress
		params.Name = token.Name
		params.Symbol = token.Symbol
		params.Supply = token.Supply
		params.Decimals = token.Decimals
	} else {
		nft := p.req.NFT
		params.Name = nft.Title
		params.Symbol = nft.Symbol
		params.Attributes = nft.Attributes
		params.RoyaltyPercent = nft.Royalty
	}

	res, err := deps.Minter.Mint(stageCtx, params)
	if err != nil {
		return minter.Result{}, err
	}
	p.track(models.RewardMint, res.TxRef, pick(res.OnChainCost, p.fee.Network))
	return res, nil
}

// complete persists the successful operation and returns its record id. The
// recorded expense never exceeds the payment; an observed overage is kept as
// the record's reconciled expense.
func (p *pipeline) complete(ctx context.Context) (string, *Error) {
	expense, source := p.expense(ctx)
	var overage *decimal.Decimal
	if expense.GreaterThan(p.payment.Received) {
		p.logger.Warn("Mint expense exceeds payment",
			zap.String("expense", expense.String()),
			zap.String("received", p.payment.Received.String()))
		if source == models.ExpenseObserved {
			full := expense
			overage = &full
		}
		expense = p.payment.Received
	}

	params := store.SaveMainTransactionParams{
		OperationType:    models.OperationMint,
		AssetType:        p.req.AssetType,
		Chain:            p.req.Chain,
		PaymentSignature: p.req.PaymentSignature,
		PaymentPubkey:    p.payment.Sender,
		PaymentAmount:    p.payment.Received,
		ExpenseAmount:    expense,
		ExpenseSource:    source,
		Rewards:          p.rewards,
	}
	id, err := p.o.deps.Ledger.SaveMainTransaction(ctx, params)
	if err != nil {
		p.logger.Error("Failed to persist completed mint", zap.String("stage", "complete"), zap.Error(err))
		msg := fmt.Sprintf("Your asset was minted but the operation could not be recorded. Please contact support with your payment signature %s.", p.req.PaymentSignature)
		return "", &Error{Kind: KindRecordFailed, Step: StepCompleted, Message: msg, Err: err}
	}

	if overage != nil {
		if err := p.o.deps.Ledger.RecordReconciliation(ctx, id, *overage); err != nil {
			p.logger.Warn("Failed to record expense overage", zap.String("record_id", id), zap.Error(err))
		}
	}

	if p.o.deps.Mirror != nil {
		if err := p.o.deps.Mirror.RecordOperation(ctx, id, params, decimal.Zero); err != nil {
			p.logger.Warn("Ledger mirror failed", zap.String("record_id", id), zap.Error(err))
		}
	}

	p.logger.Info("Mint completed",
		zap.String("stage", "complete"),
		zap.String("record_id", id),
		zap.String("received", p.payment.Received.String()),
		zap.String("expense", expense.String()),
		zap.String("expense_source", string(source)))
	return id, nil
}

func (p *pipeline) track(kind models.RewardTxType, txRef string, estimate decimal.Decimal) {
	if txRef != "" {
		p.rewards = append(p.rewards, store.RewardParams{Type: kind, TxRef: txRef})
	}
	p.costs = append(p.costs, costItem{txRef: txRef, estimate: estimate})
}

// expense sums the cost of every tracked transaction. The source is estimate
// as soon as one paid cost could not be observed.
func (p *pipeline) expense(ctx context.Context) (decimal.Decimal, models.ExpenseSource) {
	total := decimal.Zero
	source := models.ExpenseObserved
	for _, item := range p.costs {
		cost, observed := p.cost(ctx, item)
		total = total.Add(cost)
		if !observed && item.estimate.IsPositive() {
			source = models.ExpenseEstimate
		}
	}
	return total, source
}

func (p *pipeline) spent(ctx context.Context) decimal.Decimal {
	total, _ := p.expense(ctx)
	return total
}

func (p *pipeline) cost(ctx context.Context, item costItem) (decimal.Decimal, bool) {
	if item.txRef == "" {
		return item.estimate, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.o.cfg.DeltaTimeout)
	defer cancel()

	delta, ok := p.conn.OwnBalanceDelta(ctx, item.txRef)
	if !ok || delta.IsPositive() {
		return item.estimate, false
	}
	return delta.Neg(), true
}

func (p *pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.o.cfg.StageTimeout > 0 {
		return context.WithTimeout(ctx, p.o.cfg.StageTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *pipeline) stage(name string) func() {
	start := time.Now()
	return func() {
		p.o.deps.Metrics.ObserveStage(p.req.Chain, name, time.Since(start))
	}
}

func (p *pipeline) emit(step int, result string) {
	p.logger.Info("Pipeline step completed", zap.Int("step", step), zap.String("result", result))
	p.send(models.Event{StepID: step, Result: result})
}

func (p *pipeline) fail(e *Error) {
	p.logger.Error("Mint pipeline failed",
		zap.String("kind", string(e.Kind)),
		zap.Int("step", e.Step),
		zap.Bool("refund_attempted", e.refundAttempted()),
		zap.Bool("refunded", e.refunded()),
		zap.Error(e))
	p.send(models.Event{
		StepID: e.Step,
		Result: e.Message,
		Error: &models.ErrorEvent{
			Kind:            string(e.Kind),
			Message:         e.Message,
			RefundAttempted: e.refundAttempted(),
			Refunded:        e.refunded(),
		},
		Done: true,
	})
}

// send never blocks: the channel holds every event a pipeline can emit.
func (p *pipeline) send(ev models.Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Error("Event dropped", zap.Int("step", ev.StepID))
	}
}

func pick(reported, estimate decimal.Decimal) decimal.Decimal {
	if reported.IsPositive() {
		return reported
	}
	return estimate
}
