package sqlite

import (
	"context"
	"time"
)

func (t *tx) DialogState(ctx context.Context, chatID int64) (string, []byte, error) {
	var (
		state string
		raw   string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT state, payload FROM dialog_states WHERE chat_id = ?`, chatID).Scan(&state, &raw)
	if err != nil {
		return "", nil, mapErr(err)
	}
	return state, []byte(raw), nil
}

func (t *tx) SaveDialogState(ctx context.Context, chatID int64, state string, payload []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO dialog_states (chat_id, state, payload, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT (chat_id) DO UPDATE SET
		  state = excluded.state, payload = excluded.payload, updated_at = excluded.updated_at`,
		chatID, state, string(payload), fmtTS(time.Now()))
	return mapErr(err)
}

func (t *tx) DeleteDialogState(ctx context.Context, chatID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM dialog_states WHERE chat_id = ?`, chatID)
	return mapErr(err)
}
