package stroke

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is a stroke row as it travels between the store and its readers. Data is kept raw
// so that one bad row can be skipped without failing the rest of a batch.
type Record struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// NewRecord builds a record around an already-encoded payload.
func NewRecord(id, ownerID string, createdAt time.Time, payload Payload) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Record{ID: id, OwnerID: ownerID, CreatedAt: createdAt, Data: raw}, nil
}

// DecodeRecord parses the record payload and dequantizes it into a Stroke.
func DecodeRecord(r Record, quant int) (Stroke, error) {
	if r.ID == "" {
		return Stroke{}, fmt.Errorf("%w: record has no id", ErrMalformedPayload)
	}
	payload, err := ParsePayload(r.Data)
	if err != nil {
		return Stroke{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	if err := payload.Validate(); err != nil {
		return Stroke{}, fmt.Errorf("record %s: %w: %w", r.ID, ErrMalformedPayload, err)
	}
	return Stroke{
		ID:        r.ID,
		Path:      Decode(payload, quant),
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}, nil
}
