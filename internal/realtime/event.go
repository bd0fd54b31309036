package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/wish-lanterns/internal/domain"
)

// changeMessage is the JSON structure of one change on the wishes table. The
// same shape travels over the WebSocket feed and through Postgres NOTIFY.
type changeMessage struct {
	Table     string           `json:"table"`
	EventType domain.EventKind `json:"eventType"`
	New       *domain.Wish     `json:"new,omitempty"`
	Old       *oldRecord       `json:"old,omitempty"`
}

// oldRecord is the part of a removed row a DELETE carries.
type oldRecord struct {
	ID string `json:"id"`
}

// EncodeEvent serializes ev for the wire.
func EncodeEvent(ev domain.ChangeEvent) ([]byte, error) {
	msg := changeMessage{Table: domain.WishTable}

	switch e := ev.(type) {
	case domain.Inserted:
		msg.EventType = domain.EventInsert
		msg.New = &e.Wish
	case domain.Updated:
		msg.EventType = domain.EventUpdate
		msg.New = &e.Wish
		msg.Old = &oldRecord{ID: e.Wish.ID}
	case domain.Deleted:
		msg.EventType = domain.EventDelete
		msg.Old = &oldRecord{ID: e.ID}
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}

	return json.Marshal(msg)
}

// DecodeEvent parses a wire message. It fails for anything that is not a
// well-formed change on the wishes table.
func DecodeEvent(data []byte) (domain.ChangeEvent, error) {
	var msg changeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	if msg.Table != "" && msg.Table != domain.WishTable {
		return nil, fmt.Errorf("unexpected table %q", msg.Table)
	}

	switch msg.EventType {
	case domain.EventInsert:
		if msg.New == nil || msg.New.ID == "" {
			return nil, fmt.Errorf("INSERT without new record")
		}
		return domain.Inserted{Wish: *msg.New}, nil
	case domain.EventUpdate:
		if msg.New == nil || msg.New.ID == "" {
			return nil, fmt.Errorf("UPDATE without new record")
		}
		return domain.Updated{Wish: *msg.New}, nil
	case domain.EventDelete:
		if msg.Old == nil || msg.Old.ID == "" {
			return nil, fmt.Errorf("DELETE without old record")
		}
		return domain.Deleted{ID: msg.Old.ID}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.EventType)
	}
}
