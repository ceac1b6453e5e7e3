package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefreshRequest asks a worker to look up one entity's profile. It carries
// only the name; the worker reads and writes the ledger itself.
type RefreshRequest struct {
	JobID     uuid.UUID `json:"job_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshRequest(name string) *RefreshRequest {
	return &RefreshRequest{
		JobID:     uuid.New(),
		Name:      name,
		Timestamp: time.Now(),
	}
}

func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestFromJSON decodes and validates a message body.
func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.Name = strings.TrimSpace(msg.Name)
	if msg.Name == "" {
		return nil, errors.New("refresh request without name")
	}
	if msg.JobID == uuid.Nil {
		return nil, errors.New("refresh request without job id")
	}
	return &msg, nil
}
