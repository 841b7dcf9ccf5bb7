package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Spok95/subgate/internal/storage"
)

// Repo хранит шаг диалога по чату в таблице dialog_states.
type Repo struct {
	store storage.Store
}

func NewRepo(store storage.Store) *Repo { return &Repo{store: store} }

func (r *Repo) Get(ctx context.Context, chatID int64) (*Item, error) {
	var (
		state string
		raw   []byte
	)
	err := r.store.View(ctx, func(tx storage.Tx) error {
		var err error
		state, raw, err = tx.DialogState(ctx, chatID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		// если строки нет: считаем, что состояния пока нет
		return &Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dialog %d: %w", chatID, err)
	}
	p := Payload{}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode dialog %d: %w", chatID, err)
	}
	return &Item{ChatID: chatID, State: State(state), Payload: p}, nil
}

func (r *Repo) Set(ctx context.Context, chatID int64, state State, payload Payload) error {
	if payload == nil {
		payload = Payload{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode dialog %d: %w", chatID, err)
	}
	return r.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.SaveDialogState(ctx, chatID, string(state), raw)
	})
}

func (r *Repo) Reset(ctx context.Context, chatID int64) error {
	return r.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteDialogState(ctx, chatID)
	})
}

// GetString Helper для безопасного чтения строк из payload
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt64: после JSON числа приходят как float64.
func GetInt64(p Payload, key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
