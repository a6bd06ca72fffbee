// Package discord delivers operator alerts through a webhook. A missing
// webhook URL disables the notifier without touching call sites.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/courtsidehq/courtside/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}
	return nil
}

const (
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

// BreakerTrip alerts the operator to a circuit-breaker transition. Level
// names follow the risk manager's: game, session, system, kill.
func (n *Notifier) BreakerTrip(ctx context.Context, level, gameID, reason string, dayPnLCents int64) error {
	fields := []Field{
		{Name: "Level", Value: level, Inline: true},
		{Name: "Day P&L", Value: dollars(dayPnLCents), Inline: true},
	}
	if gameID != "" {
		fields = append(fields, Field{Name: "Game", Value: gameID, Inline: true})
	}
	fields = append(fields, Field{Name: "Reason", Value: reason})

	return n.SendEmbed(ctx, Embed{
		Title:  "Circuit Breaker Tripped",
		Color:  ColorRed,
		Fields: fields,
	})
}

// SuspiciousEdge alerts on a suppressed too-good-to-be-true edge; bad feed
// data usually shows up here first.
func (n *Notifier) SuspiciousEdge(ctx context.Context, gameID string, edge float64, priceCents int) error {
	return n.SendEmbed(ctx, Embed{
		Title: "Suspicious Edge Suppressed",
		Color: ColorYellow,
		Fields: []Field{
			{Name: "Game", Value: gameID, Inline: true},
			{Name: "Edge", Value: fmt.Sprintf("%+.1f%%", edge*100), Inline: true},
			{Name: "Price", Value: fmt.Sprintf("%d¢", priceCents), Inline: true},
		},
	})
}

// SessionReport posts the end-of-session summary.
func (n *Notifier) SessionReport(ctx context.Context, games int, fills uint64, dayPnLCents int64) error {
	return n.SendEmbed(ctx, Embed{
		Title: "Session Complete",
		Color: ColorBlue,
		Fields: []Field{
			{Name: "Games", Value: humanize.Comma(int64(games)), Inline: true},
			{Name: "Fills", Value: humanize.Comma(int64(fills)), Inline: true},
			{Name: "Day P&L", Value: dollars(dayPnLCents), Inline: true},
		},
	})
}

func dollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}
