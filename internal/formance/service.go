package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainportal-mint-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// assetPrecision maps native chain symbols to their decimal precision.
var assetPrecision = map[string]int{
	"ETH": 18,
	"SOL": 9,
}

// ledgerAPI is the part of the Formance ledger v2 API the mirror uses.
type ledgerAPI interface {
	CreateLedger(ctx context.Context, req operations.V2CreateLedgerRequest) error
	CreateTransaction(ctx context.Context, req operations.V2CreateTransactionRequest) error
}

type sdkLedger struct {
	client *v3.Formance
}

func (l sdkLedger) CreateLedger(ctx context.Context, req operations.V2CreateLedgerRequest) error {
	_, err := l.client.Ledger.V2.CreateLedger(ctx, req)
	return err
}

func (l sdkLedger) CreateTransaction(ctx context.Context, req operations.V2CreateTransactionRequest) error {
	_, err := l.client.Ledger.V2.CreateTransaction(ctx, req)
	return err
}

// Mirror copies every persisted operation into a Formance Stack ledger as
// double-entry postings. The local sqlite ledger stays the source of truth.
type Mirror struct {
	api    ledgerAPI
	ledger string
}

// NewMirror connects to the stack and creates the ledger if it doesn't already exist.
func NewMirror(ctx context.Context, cfg models.FormanceConfig) (*Mirror, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "chainportal"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	return newMirror(ctx, sdkLedger{client: client}, cfg.LedgerName)
}

func newMirror(ctx context.Context, api ledgerAPI, ledger string) (*Mirror, error) {
	m := &Mirror{api: api, ledger: ledger}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}
	zap.L().Info("Formance mirror initialized", zap.String("ledger", ledger))
	return m, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (m *Mirror) ensureLedger(ctx context.Context) error {
	err := m.api.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "chainportal-mint",
			},
		},
	})
	if err != nil {
		if hasErrorCode(err, shared.V2ErrorsEnumLedgerAlreadyExists) {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "SOL/9".
func formanceAsset(symbol string) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol))
}

func precisionFor(symbol string) int {
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 18
}

// smallestUnit converts an amount to the integer count of the asset's
// smallest unit, truncating anything finer.
func smallestUnit(amount decimal.Decimal, symbol string) string {
	return amount.Shift(int32(precisionFor(symbol))).BigInt().String()
}

// chainSegment is the chain's segment in platform account addresses.
func chainSegment(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	return hasErrorCode(err, shared.V2ErrorsEnumConflict)
}

func hasErrorCode(err error, code shared.V2ErrorsEnum) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}

func strPtr(s string) *string { return &s }
