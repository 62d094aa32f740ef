package settlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	EventTransferCreated = "transfer.created"
	EventTransferPaid    = "transfer.paid"
	EventTransferFailed  = "transfer.failed"
	EventAccountUpdated  = "account.updated"
)

var ErrMalformedEvent = errors.New("malformed settlement event")

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Decode already verified event body
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.ID == "" || e.Type == "" {
		return e, fmt.Errorf("%w: id and type are required", ErrMalformedEvent)
	}
	return e, nil
}

func (e Event) CreatedAt() time.Time {
	if e.Created == 0 {
		return time.Now()
	}
	return time.Unix(e.Created, 0)
}

func (e Event) Transfer() (Transfer, error) {
	var t Transfer
	if err := json.Unmarshal(e.Data.Object, &t); err != nil {
		return t, fmt.Errorf("%w: transfer: %v", ErrMalformedEvent, err)
	}
	if t.ID == "" {
		return t, fmt.Errorf("%w: transfer id is required", ErrMalformedEvent)
	}
	return t, nil
}

func (e Event) Account() (Account, error) {
	var a Account
	if err := json.Unmarshal(e.Data.Object, &a); err != nil {
		return a, fmt.Errorf("%w: account: %v", ErrMalformedEvent, err)
	}
	if a.ID == "" {
		return a, fmt.Errorf("%w: account id is required", ErrMalformedEvent)
	}
	return a, nil
}
