package notify

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/progress"
)

// Notifier posts sync outcomes to a Telegram chat. Send-only, it never polls
// for updates.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &Notifier{
		api:    api,
		chatID: chatID,
	}, nil
}

// NotifyBatch posts a summary of a finished batch, per-course lines included.
func (n *Notifier) NotifyBatch(batchID string, record *progress.BatchRecord) error {
	if record == nil {
		return nil
	}

	var sb strings.Builder
	header := "✅ Sync finished"
	if record.Status == progress.StatusError {
		header = "❌ Sync failed"
	}
	fmt.Fprintf(&sb, "%s (batch %s)\n%s\n", header, batchID, record.Message)

	keys := make([]string, 0, len(record.Courses))
	for k := range record.Courses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		course := record.Courses[k]
		mark := "✓"
		if course.Status == progress.StatusError {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%s %s", mark, course.Name)
		if course.Message != "" {
			fmt.Fprintf(&sb, ": %s", course.Message)
		}
		sb.WriteString("\n")
	}

	if record.Error != "" {
		fmt.Fprintf(&sb, "\n%s", record.Error)
	}

	return n.send(sb.String())
}

func (n *Notifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	logger.Debug.Printf("Sent notification to chat %d", n.chatID)
	return nil
}
