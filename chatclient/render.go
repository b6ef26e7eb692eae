package chatclient

import (
	"fmt"
	"strings"
	"time"
)

// AvatarPlaceholder stands in for the sender's picture.
const AvatarPlaceholder = "●"

// RenderEntry formats e as a display block: timestamp, avatar placeholder,
// display name and body. Continuation lines of a multi-line body are
// indented under the first. Error entries carry no name.
func RenderEntry(e LogEntry, displayName string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	ts := e.Created.In(loc).Format(time.TimeOnly)
	if e.Error {
		return fmt.Sprintf("[%s] ! %s", ts, e.Text)
	}
	head := fmt.Sprintf("[%s] %s %s: ", ts, AvatarPlaceholder, displayName)
	indent := strings.Repeat(" ", len([]rune(head)))
	return head + strings.ReplaceAll(e.Text, "\n", "\n"+indent)
}
