package postgres

import (
	"context"
	"fmt"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/models"
)

type EventRepo struct {
	DB DBTX
}

func (r *EventRepo) Record(ctx context.Context, e models.SettlementEvent) error {
	const recordEvent = `-- name: RecordEvent
	INSERT INTO settlement_events (id, type, created, payload)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
	`

	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	tag, err := r.DB.Exec(ctx, recordEvent, e.ID, e.Type, e.Created, string(payload))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrEventAlreadyHandled
	}

	return nil
}
