package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"webhook-chat/internal/logger"
	"webhook-chat/internal/store"
)

// Durable record keys.
const (
	KeyConfig   = "n8n_chat_config"
	KeyMessages = "n8n_chat_messages"
)

// Manager reads and writes the config and message records. Unreadable
// records are reported as absent.
type Manager struct {
	mu    sync.Mutex
	store store.Store
}

// NewManager creates a new history manager on top of s
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// LoadConfig returns the saved config, or false if there is none usable.
func (m *Manager) LoadConfig() (ChatConfig, bool) {
	var cfg ChatConfig
	if !m.load(KeyConfig, &cfg) {
		return ChatConfig{}, false
	}
	if cfg.SessionID == "" {
		logger.WarnCF("history", "Ignoring config record without session id", nil)
		return ChatConfig{}, false
	}
	return cfg, true
}

// SaveConfig overwrites the config record.
func (m *Manager) SaveConfig(cfg ChatConfig) error {
	return m.save(KeyConfig, cfg)
}

// LoadMessages returns the saved conversation in append order, or false if
// there is none usable.
func (m *Manager) LoadMessages() ([]Message, bool) {
	var msgs []Message
	if !m.load(KeyMessages, &msgs) {
		return nil, false
	}
	for i, msg := range msgs {
		if !msg.Role.Valid() {
			logger.WarnCF("history", "Ignoring message record with unknown role",
				map[string]interface{}{"index": i, "role": string(msg.Role)})
			return nil, false
		}
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, true
}

// SaveMessages overwrites the message record with msgs.
func (m *Manager) SaveMessages(msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	return m.save(KeyMessages, msgs)
}

// ClearMessages removes the message record.
func (m *Manager) ClearMessages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(KeyMessages); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (m *Manager) load(key string, v interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.store.Load(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.WarnCF("history", "Failed to read record",
				map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		logger.WarnCF("history", "Ignoring corrupt record",
			map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

func (m *Manager) save(key string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := m.store.Save(key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
