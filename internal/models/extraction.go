package models

import "encoding/json"

// ExtractionBatchResult is the raw output of one logical extraction request.
// Items are kept undecoded so malformed records can be skipped individually.
type ExtractionBatchResult struct {
	RawItems         []json.RawMessage `json:"rawItems"`
	TotalItems       int               `json:"totalItems"`
	BatchesProcessed int               `json:"batchesProcessed"`
}
