// Package receipts holds the append-only log of observable outcomes produced by
// committed calls: attribute writes, paid queries, burns, mints and withdrawals.
package receipts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind names a receipt type.
type Kind string

const (
	KindSetAttribute        Kind = "SetAttributeReceipt"
	KindQueryFee            Kind = "QueryFeeReceipt"
	KindQuery               Kind = "QueryEvent"
	KindQueryBulk           Kind = "QueryBulkEvent"
	KindBurnPassportsIssuer Kind = "BurnPassportsIssuer"
	KindBurnPassports       Kind = "BurnPassports"
	KindTransferSingle      Kind = "TransferSingle"
	KindWithdraw            Kind = "WithdrawReceipt"
)

// Receipt is one log entry. Fields not meaningful for a Kind are zero.
//
// TransferSingle uses Operator/From/To/TokenID/Amount with From zero on mint and
// To zero on burn. QueryFeeReceipt names the issuer and the credited treasury
// in To. WithdrawReceipt uses To for the beneficiary.
type Receipt struct {
	ID             uuid.UUID      `json:"id"`
	Sequence       uint64         `json:"sequence"`
	Kind           Kind           `json:"kind"`
	BlockTime      time.Time      `json:"block_time"`
	Subject        common.Address `json:"subject"`
	Issuer         common.Address `json:"issuer"`
	Requester      common.Address `json:"requester"`
	Operator       common.Address `json:"operator"`
	From           common.Address `json:"from"`
	To             common.Address `json:"to"`
	TokenID        uint64         `json:"token_id"`
	Amount         *big.Int       `json:"amount,omitempty"`
	AttributeTypes []common.Hash  `json:"attribute_types,omitempty"`
}

// Sink receives the receipts of one committed call, in emission order.
type Sink interface {
	Append(ctx context.Context, batch []Receipt) error
}

// Fanout appends to every sink in order and stops at the first failure.
type Fanout []Sink

func (f Fanout) Append(ctx context.Context, batch []Receipt) error {
	for _, sink := range f {
		if err := sink.Append(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every batch.
type Discard struct{}

func (Discard) Append(context.Context, []Receipt) error { return nil }
