package amqp

import (
	"encoding/json"
	"time"
)

// ReportGeneratedMessage announces that an insight report was computed.
// It carries identifiers only; the worker recomputes the report from
// storage before narrating it.
type ReportGeneratedMessage struct {
	UserID      string    `json:"user_id"`
	Period      string    `json:"period"`
	PeriodKey   string    `json:"period_key"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewReportGeneratedMessage(userID, period, periodKey, fingerprint string) *ReportGeneratedMessage {
	return &ReportGeneratedMessage{
		UserID:      userID,
		Period:      period,
		PeriodKey:   periodKey,
		Fingerprint: fingerprint,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func ReportGeneratedMessageFromJSON(data []byte) (*ReportGeneratedMessage, error) {
	var msg ReportGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
