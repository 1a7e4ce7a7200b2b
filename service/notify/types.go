package notify

import (
	"strings"
	"time"

	"github.com/txpulse/txpulse/service/monitor"
)

// Notification is a rendered change event ready for delivery. Body is the
// human-readable message; Event carries the structured payload so consumers
// that want machine-readable data do not need to parse the text.
type Notification struct {
	Wallet      string              `json:"wallet"`
	Kind        monitor.EventKind   `json:"kind"`
	Body        string              `json:"body"`
	Event       monitor.ChangeEvent `json:"event"`
	PublishedAt time.Time           `json:"published_at"`
}

// SubjectToken normalizes a wallet nickname into a NATS subject token:
// lowercase, with whitespace and subject-reserved characters collapsed to
// hyphens. "Main Treasury" becomes "main-treasury".
func SubjectToken(nickname string) string {
	var b strings.Builder
	b.Grow(len(nickname))
	lastHyphen := false
	for _, r := range strings.ToLower(nickname) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
