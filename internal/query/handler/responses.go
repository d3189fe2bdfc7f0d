package handler

import (
	"math/big"

	ledger "passport/internal/ledger/models"
	"passport/internal/query/models"
)

// Amounts are rendered as decimal strings.

type FeeResponse struct {
	Fee string `json:"fee"`
}

func FromFee(fee *big.Int) FeeResponse {
	return FeeResponse{Fee: fee.String()}
}

type BalanceResponse struct {
	Balance string `json:"balance"`
}

type RecordsResponse struct {
	Records []ledger.AttributeRecord `json:"records"`
}

func FromRecords(recs []ledger.AttributeRecord) RecordsResponse {
	if recs == nil {
		recs = []ledger.AttributeRecord{}
	}
	return RecordsResponse{Records: recs}
}

type BulkRecordsResponse struct {
	Results [][]ledger.AttributeRecord `json:"results"`
}

func FromBulk(results [][]ledger.AttributeRecord) BulkRecordsResponse {
	for i, recs := range results {
		if recs == nil {
			results[i] = []ledger.AttributeRecord{}
		}
	}
	return BulkRecordsResponse{Results: results}
}

type LegacyResponse = models.Legacy

type FlashResponse struct {
	Result bool `json:"result"`
}

type EpochResponse struct {
	Epoch uint64 `json:"epoch"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type MetadataResponse struct {
	Metadata []ledger.AttributeMetadata `json:"metadata"`
}
