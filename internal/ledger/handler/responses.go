package handler

import (
	"passport/internal/ledger/models"
)

type RecordsResponse struct {
	Records []models.AttributeRecord `json:"records"`
}

func FromRecords(recs []models.AttributeRecord) RecordsResponse {
	if recs == nil {
		recs = []models.AttributeRecord{}
	}
	return RecordsResponse{Records: recs}
}

type RecordResponse struct {
	Found  bool                    `json:"found"`
	Record *models.AttributeRecord `json:"record,omitempty"`
}

type MetadataResponse struct {
	Metadata []models.AttributeMetadata `json:"metadata"`
}

type SourceRecordsResponse struct {
	Records []models.SourceRecord `json:"records"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type BalanceResponse struct {
	Balance uint64 `json:"balance"`
}

type BalancesResponse struct {
	Balances []uint64 `json:"balances"`
}

type PausedResponse struct {
	Paused bool `json:"paused"`
}
