package models

import (
	"encoding/json"
	"time"
)

// Inbound event from the settlement processor, recorded once handled
type SettlementEvent struct {
	ID         string
	Type       string
	Created    time.Time
	ReceivedAt time.Time
	Payload    json.RawMessage
}
