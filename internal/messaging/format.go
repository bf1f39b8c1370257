package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/matching"
)

// FormatPlainText renders a reply for channels that cannot show buttons.
// Choices become a numbered list, which the matcher accepts back as
// positional input.
func FormatPlainText(content string, choices []matching.Choice) string {
	content = strings.TrimSpace(content)
	if len(choices) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Label)
	}
	return b.String()
}
