package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"stockhistory/internal/core"
)

// SnapshotUpdatedType is the AMQP message type of SnapshotUpdatedMessage.
const SnapshotUpdatedType = "snapshot.updated"

// SnapshotUpdatedMessage announces that the snapshot pair gained new months.
// Consumers reload the files themselves; the message only says where and up to when.
type SnapshotUpdatedMessage struct {
	LastDate       string    `json:"last_date"`
	MonthsAppended int       `json:"months_appended"`
	ValueFile      string    `json:"value_file"`
	QuantityFile   string    `json:"quantity_file"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewSnapshotUpdatedMessage(lastDate core.Date, monthsAppended int, valueFile, quantityFile string) *SnapshotUpdatedMessage {
	return &SnapshotUpdatedMessage{
		LastDate:       lastDate.String(),
		MonthsAppended: monthsAppended,
		ValueFile:      valueFile,
		QuantityFile:   quantityFile,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotUpdatedMessageFromJSON decodes and checks a message body.
func SnapshotUpdatedMessageFromJSON(data []byte) (*SnapshotUpdatedMessage, error) {
	var msg SnapshotUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := core.ParseDate(msg.LastDate); err != nil {
		return nil, fmt.Errorf("invalid last_date: %w", err)
	}
	return &msg, nil
}
