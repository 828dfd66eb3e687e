package notify

import (
	"context"
	"net/http"
)

// Embed colours per event type.
var discordColors = map[string]int{
	EventMarketCreated:  0x2ecc71,
	EventMarketResolved: 0x3498db,
	EventError:          0xe74c3c,
}

// DiscordSender delivers alerts as a single webhook embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Send implements Sender. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordPayload{
		Username: "marketindexer",
		Embeds:   []discordEmbed{discordEmbedFor(a)},
	})
}

func discordEmbedFor(a Alert) discordEmbed {
	e := discordEmbed{Title: a.Title, Description: a.Body, Color: discordColors[a.Event]}
	for _, f := range a.Fields {
		e.Fields = append(e.Fields, discordField{Name: f.Name, Value: f.Value, Inline: len(f.Value) < 24})
	}
	return e
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }
