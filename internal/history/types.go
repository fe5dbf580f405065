package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system" // declared for the wire format, never produced
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single entry of the conversation. Timestamp is Unix milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the creation instant.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// ChatConfig is the durable webhook configuration of this client instance.
type ChatConfig struct {
	WebhookURL string `json:"webhookUrl"`
	SessionID  string `json:"sessionId"`
}

// Configured reports whether a webhook URL has been set.
func (c ChatConfig) Configured() bool {
	return c.WebhookURL != ""
}

// NewSessionID returns a fresh correlation token like "SESS-3F9A1C07B".
func NewSessionID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("SESS-%s", raw[:9])
}
