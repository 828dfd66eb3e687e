package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// TelegramSender delivers alerts through the Bot API sendMessage call. Text
// is sent as HTML so market questions need only entity escaping.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  newHTTPClient(),
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send implements Sender.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	return postJSON(ctx, t.client, "telegram", url, telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(a),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
}

func telegramText(a Alert) string {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(a.Title) + "</b>")
	if a.Body != "" {
		b.WriteString("\n" + html.EscapeString(a.Body))
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "\n<i>%s:</i> <code>%s</code>", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	return b.String()
}

// Name implements Sender.
func (t *TelegramSender) Name() string { return "telegram" }
