package tools

import (
	"fmt"
	"strings"

	"github.com/smaller-world/happytown.life/internal/models"
)

// UnknownUser labels quote participants that never resolved to a known
// account.
const UnknownUser = "(unknown user)"

// RenderMessage renders one message as a transcript line the model can read
// and whose id it can feed back into the message-loading tools.
func RenderMessage(v *models.MessageView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s",
		v.ID, v.Timestamp.UTC().Format("2006-01-02 15:04"), v.SenderName(), v.Body)

	if q := v.Quote(); q != nil {
		name := UnknownUser
		if v.QuotedSenderName != nil && *v.QuotedSenderName != "" {
			name = *v.QuotedSenderName
		}
		fmt.Fprintf(&b, "\n    (quoting %s: %s)", name, q.Body)
	}
	return b.String()
}

// RenderMessages renders a transcript excerpt, oldest first.
func RenderMessages(views []*models.MessageView) string {
	if len(views) == 0 {
		return "No messages found."
	}
	lines := make([]string, 0, len(views))
	for _, v := range views {
		lines = append(lines, RenderMessage(v))
	}
	return strings.Join(lines, "\n")
}
