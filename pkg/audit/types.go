package audit

import "context"

const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Entry is one audited engine call.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	UserID     string `json:"user_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error_message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}

// Classifier reports whether err is a domain refusal rather than a fault.
type Classifier func(err error) bool
