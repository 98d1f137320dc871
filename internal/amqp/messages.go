package amqp

import (
	"encoding/json"
	"time"
)

// InvalidationMessage announces that the ledger changed for one member on
// one day. Consumers recompute the affected snapshots; the message carries
// no amounts because recomputation always rereads the persisted ledger.
type InvalidationMessage struct {
	UserID    string    `json:"userId"`
	MemberID  string    `json:"memberId"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInvalidationMessage creates a message for a ledger write on the given
// calendar day.
func NewInvalidationMessage(userID, memberID, date string) *InvalidationMessage {
	return &InvalidationMessage{
		UserID:    userID,
		MemberID:  memberID,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InvalidationMessageFromJSON parses a message from JSON bytes.
func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
