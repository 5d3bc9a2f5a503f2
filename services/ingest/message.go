package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taobridge/native/bridge"
)

// ErrMalformedEnvelope marks structurally invalid inbound payloads. Semantic
// failures (replays, unknown recipients) surface from the ledger instead.
var ErrMalformedEnvelope = errors.New("ingest: malformed envelope")

// Envelope is the wire form of one attested inbound batch. The authority that
// signed the batch on the counter chain must match the ledger's configured
// execution authority or the batch is rejected wholesale.
type Envelope struct {
	BatchID   string                `json:"batchId"`
	Authority string                `json:"authority"`
	Items     []bridge.TransferItem `json:"transferRequests"`
}

// DecodeEnvelope parses and structurally validates an inbound batch payload.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks the envelope structure without touching ledger state.
func (e *Envelope) Validate() error {
	if _, err := uuid.Parse(e.BatchID); err != nil {
		return fmt.Errorf("%w: batch id: %v", ErrMalformedEnvelope, err)
	}
	if e.Authority == "" {
		return fmt.Errorf("%w: missing authority", ErrMalformedEnvelope)
	}
	if len(e.Items) == 0 {
		return fmt.Errorf("%w: empty batch", ErrMalformedEnvelope)
	}
	for i, item := range e.Items {
		if item.TokenKey.IsZero() {
			return fmt.Errorf("%w: item %d: zero token key", ErrMalformedEnvelope, i)
		}
		if item.Amount == nil {
			return fmt.Errorf("%w: item %d: missing amount", ErrMalformedEnvelope, i)
		}
	}
	return nil
}
