package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEntryMessage notifies consumers that a journal entry was posted.
// It carries only the transaction ID; the mirror worker fetches the full
// entry from the database before appending it downstream.
type LedgerEntryMessage struct {
	TransactionID int64     `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEntryMessage creates a message for a posted transaction.
func NewLedgerEntryMessage(transactionID int64) *LedgerEntryMessage {
	return &LedgerEntryMessage{
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *LedgerEntryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEntryMessageFromJSON creates a message from JSON bytes.
func LedgerEntryMessageFromJSON(data []byte) (*LedgerEntryMessage, error) {
	var msg LedgerEntryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
