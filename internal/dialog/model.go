package dialog

type State string

const (
	StateIdle State = "idle"

	// Проход, ждём ввода номера машины
	StateAwaitPlate State = "await_plate"
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}
