package ledger

import (
	"fmt"
	"time"
)

// Method: способ, которым терминал прочитал абонемент.
type Method string

const (
	MethodNFC  Method = "nfc"
	MethodQR   Method = "qr"
	MethodCode Method = "code"
	MethodCard Method = "card"
)

func (m Method) Valid() bool {
	switch m {
	case MethodNFC, MethodQR, MethodCode, MethodCard:
		return true
	}
	return false
}

func ParseMethod(s string) (Method, error) {
	if s == "" {
		return MethodNFC, nil
	}
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("ledger: unknown verification method %q", s)
	}
	return m, nil
}

// Event: запись журнала проходов. После записи не меняется и не удаляется.
type Event struct {
	ID             int64
	SubscriptionID int64
	ServiceID      int64
	At             time.Time
	Plate          string // пусто = номер не предъявлялся
	Method         Method
	Authorized     bool
	Reason         string // код отказа, пусто для разрешённых
	Station        string
	Operator       string
}

// Stats: сводка журнала за интервал.
type Stats struct {
	Authorized int
	Denied     int
}
