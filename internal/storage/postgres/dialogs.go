package postgres

import "context"

func (t *tx) DialogState(ctx context.Context, chatID int64) (string, []byte, error) {
	var (
		state string
		raw   []byte
	)
	err := t.q.QueryRow(ctx,
		`SELECT state, payload FROM dialog_states WHERE chat_id = $1`, chatID).Scan(&state, &raw)
	if err != nil {
		return "", nil, mapErr(err)
	}
	return state, raw, nil
}

func (t *tx) SaveDialogState(ctx context.Context, chatID int64, state string, payload []byte) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO dialog_states (chat_id, state, payload, updated_at)
		VALUES ($1,$2,$3::jsonb,now())
		ON CONFLICT (chat_id) DO UPDATE SET
		  state = $2, payload = $3::jsonb, updated_at = now()`,
		chatID, state, string(payload))
	return mapErr(err)
}

func (t *tx) DeleteDialogState(ctx context.Context, chatID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM dialog_states WHERE chat_id = $1`, chatID)
	return mapErr(err)
}
