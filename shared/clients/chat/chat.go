package chat

import "context"

// Card is the platform-neutral rich message. Adapters render it to
// whatever the platform supports; plain-text platforms flatten it.
type Card struct {
	Title    string
	Lines    []Line
	ImageURL string
	Actions  []Action
}

type Line struct {
	Label string
	Value string
}

type Action struct {
	Label string
	URI   string
	Data  string // postback payload when URI is empty
}

// Pusher delivers outbound messages to one chat platform. Implementations
// return errors; isolating those errors from lifecycle transitions is the
// caller's job.
type Pusher interface {
	PushText(ctx context.Context, to string, text string) error
	PushCard(ctx context.Context, to string, card Card) error
	ReplyText(ctx context.Context, replyToken string, text string) error
}

// Flatten renders a card as plain text for platforms without rich messages.
func Flatten(card Card) string {
	out := card.Title
	for _, l := range card.Lines {
		if l.Value == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		if l.Label != "" {
			out += l.Label + ": " + l.Value
		} else {
			out += l.Value
		}
	}
	for _, a := range card.Actions {
		if a.URI != "" {
			out += "\n" + a.Label + ": " + a.URI
		}
	}
	return out
}
