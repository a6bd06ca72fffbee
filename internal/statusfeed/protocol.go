package statusfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/courtsidehq/courtside/internal/events"
)

// Frame is the wire shape sent to status clients. Payload carries the
// original decision record; Summary is a human-readable one-liner for thin
// clients.
type Frame struct {
	Type      string    `json:"type"`
	GameID    string    `json:"game_id,omitempty"`
	Timestamp time.Time `json:"ts"`
	Summary   string    `json:"summary,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

func marshalFrame(evt events.Event) ([]byte, error) {
	return json.Marshal(Frame{
		Type:      string(evt.Type),
		GameID:    evt.GameID,
		Timestamp: evt.Timestamp,
		Summary:   summarize(evt),
		Payload:   evt.Payload,
	})
}

func summarize(evt events.Event) string {
	switch p := evt.Payload.(type) {
	case events.RunDetected:
		return fmt.Sprintf("%s: %d-0 %s run", p.GameID, p.Run, p.Team)
	case events.Fill:
		return fmt.Sprintf("%s: filled %s x%s @%d¢", p.GameID, p.Side, humanize.Comma(int64(p.Count)), p.PriceCents)
	case events.BreakerTrip:
		return fmt.Sprintf("breaker level %d: %s", p.Level, p.Reason)
	case events.Settlement:
		return fmt.Sprintf("%s: settled %d-%d", p.GameID, p.FinalHome, p.FinalAway)
	default:
		return ""
	}
}
