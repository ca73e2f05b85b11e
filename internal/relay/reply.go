package relay

import (
	"strings"

	"github.com/wolfman30/messenger-relay/internal/mavenagi"
)

// DefaultFallbackReply is delivered when the backend answer has no text.
const DefaultFallbackReply = "I'm sorry, I am having trouble answering questions right now."

const replySeparator = "\n\n"

// BuildReply extracts the reply body from an ask response: the text segments
// of the last bot message, joined by a blank line. It returns "" when there
// is no bot message or it has no text segment.
func BuildReply(resp *mavenagi.ConversationResponse) string {
	if resp == nil {
		return ""
	}
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		msg := resp.Messages[i]
		if !msg.IsBot() {
			continue
		}
		var parts []string
		for _, r := range msg.Responses {
			if r.IsText() {
				parts = append(parts, r.Text)
			}
		}
		return strings.Join(parts, replySeparator)
	}
	return ""
}
