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
	"fmt"

	"chainportal-mint-go/internal/refund"
)

// Kind classifies a terminal pipeline failure.
type Kind string

const (
	KindDuplicatePayment         Kind = "DuplicatePayment"
	KindAlreadyProcessing        Kind = "AlreadyProcessing"
	KindInvalidMetadata          Kind = "InvalidMetadata"
	KindFeeUnavailable           Kind = "FeeUnavailable"
	KindPaymentUnconfirmed       Kind = "PaymentUnconfirmed"
	KindPaymentTransactionFailed Kind = "PaymentTransactionFailed"
	KindWrongRecipient           Kind = "WrongRecipient"
	KindInsufficientPayment      Kind = "InsufficientPayment"
	KindUploadFailed             Kind = "UploadFailed"
	KindMintFailed               Kind = "MintFailed"
	KindRefundFailed             Kind = "RefundFailed"

	// KindRecordFailed means the asset was minted but the ledger write failed.
	// The payment lock is kept so the signature cannot be replayed.
	KindRecordFailed Kind = "RecordFailed"
)

// Step identifiers of the events a pipeline emits, in order.
const (
	StepValidation = iota + 1
	StepPayment
	StepPaymentValidated
	StepUploaded
	StepMinted
	StepCompleted
)

// Error is a terminal pipeline failure. Message is safe to show to users.
// Refund is set when a compensating transfer was attempted.
type Error struct {
	Kind    Kind
	Step    int
	Message string
	Refund  *refund.Outcome
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at step %d: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("%s at step %d: %s", e.Kind, e.Step, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) refundAttempted() bool { return e.Refund != nil }

func (e *Error) refunded() bool { return e.Refund != nil && e.Refund.Refunded }
