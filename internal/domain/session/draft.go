package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/salon-pos/internal/domain/order"
)

// DraftStore keeps the last order snapshot per terminal. Load returns nil
// data and no error for a missing key.
type DraftStore interface {
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Draft is a saved in-progress order.
type Draft struct {
	State   order.State `json:"state"`
	SavedAt time.Time   `json:"saved_at"`
}

// Expired reports whether the draft is older than ttl at now.
func (d Draft) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(d.SavedAt) >= ttl
}

func draftKey(branchID, terminalID string) string {
	return "pos:draft:" + branchID + ":" + terminalID
}

func encodeDraft(d Draft) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "encode draft")
	}
	return data, nil
}

func decodeDraft(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "decode draft")
	}
	return &d, nil
}
