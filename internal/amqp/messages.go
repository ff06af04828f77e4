package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	SourceManual    = "manual"
	SourceRecurring = "recurring"
)

// TransactionExportMessage asks the export worker to copy transactions to the
// spreadsheet. It carries ids only; the worker loads the rows from the ledger.
type TransactionExportMessage struct {
	UserID         string    `json:"userId"`
	TransactionIDs []string  `json:"transactionIds"`
	Source         string    `json:"source"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewTransactionExportMessage(userID, source string, ids ...string) *TransactionExportMessage {
	return &TransactionExportMessage{
		UserID:         userID,
		TransactionIDs: ids,
		Source:         source,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *TransactionExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionExportMessageFromJSON(data []byte) (*TransactionExportMessage, error) {
	var msg TransactionExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || len(msg.TransactionIDs) == 0 {
		return nil, errors.New("export message without user or transactions")
	}
	return &msg, nil
}
