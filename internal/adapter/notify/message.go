package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope published to brokers. Consumers relay it to mail.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

func newMessage(subject, body string, recipients []string) Message {
	return Message{
		ID:         uuid.NewString(),
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
		SentAt:     time.Now().UTC(),
	}
}

func (m Message) encode() ([]byte, error) {
	return json.Marshal(m)
}
