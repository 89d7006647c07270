package domain

import "time"

// Checkpoint is a versioned snapshot of a thread's state.
type Checkpoint struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Version   int64     `json:"version"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Fragment is a unit of streamed output surfaced to the caller during a turn.
type Fragment struct {
	ThreadID string         `json:"thread_id"`
	Node     string         `json:"node"`
	Message  Message        `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Content is shorthand for the fragment's text.
func (f Fragment) Content() string {
	return f.Message.Content
}

// ThreadRecord is the archival record the session layer keeps for a thread.
// Metadata is an opaque JSON document; see ThreadMetadata.
type ThreadRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadMetadata is the decoded shape of ThreadRecord.Metadata.
type ThreadMetadata struct {
	ChatHistory []HistoryEntry `json:"chat_history" mapstructure:"chat_history"`
}
