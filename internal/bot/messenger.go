package bot

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Messenger is the chat transport boundary. The engine only ever needs to
// post text, edit a previously posted status line, and upload a file; the
// webhook/polling mechanics live behind this interface.
type Messenger interface {
	// SendText posts text to a chat and returns the message id for later
	// edits.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)

	// EditText replaces the text of an earlier message.
	EditText(ctx context.Context, chatID, messageID int64, text string) error

	// SendFile uploads the file at path with a caption.
	SendFile(ctx context.Context, chatID int64, path, caption string) error
}

// LogMessenger writes every outgoing message to the structured log instead
// of a chat transport. It serves local runs and deployments without a bot
// token.
type LogMessenger struct {
	nextID int64
}

// NewLogMessenger creates a messenger that logs instead of sending.
func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (m *LogMessenger) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	id := atomic.AddInt64(&m.nextID, 1)
	slog.Info("outgoing message", "chat_id", chatID, "message_id", id, "text", text)
	return id, nil
}

func (m *LogMessenger) EditText(_ context.Context, chatID, messageID int64, text string) error {
	slog.Info("outgoing edit", "chat_id", chatID, "message_id", messageID, "text", text)
	return nil
}

func (m *LogMessenger) SendFile(_ context.Context, chatID int64, path, caption string) error {
	slog.Info("outgoing file", "chat_id", chatID, "path", path, "caption", caption)
	return nil
}
