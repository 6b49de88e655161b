package messaging

import "encoding/json"

// InboundKind is the normalized type of an inbound user message.
type InboundKind string

const (
	InboundText        InboundKind = "text"
	InboundInteractive InboundKind = "interactive"
)

// InboundMessage is the normalized (phone, type, body, id?) tuple spec §6
// describes. ID is empty for plain text messages.
type InboundMessage struct {
	Phone     string
	Kind      InboundKind
	Body      string
	ID        string
	MessageID string
}

// webhookEnvelope mirrors the messaging platform's inbound webhook shape
// closely enough to extract the one message the controller cares about.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive *struct {
						Type        string `json:"type"`
						ButtonReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
						ListReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseInbound extracts the single inbound message from the webhook
// payload, or ok=false when the payload carries no message (e.g. a status
// callback, which the ingress should 200 and ignore).
func ParseInbound(raw []byte) (InboundMessage, bool, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return InboundMessage{}, false, err
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg := InboundMessage{Phone: m.From, MessageID: m.ID}
				switch {
				case m.Text != nil:
					msg.Kind = InboundText
					msg.Body = m.Text.Body
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					msg.Kind = InboundInteractive
					msg.ID = m.Interactive.ButtonReply.ID
					msg.Body = m.Interactive.ButtonReply.ID
				case m.Interactive != nil && m.Interactive.ListReply != nil:
					msg.Kind = InboundInteractive
					msg.ID = m.Interactive.ListReply.ID
					msg.Body = m.Interactive.ListReply.ID
				default:
					msg.Kind = InboundText
				}
				return msg, true, nil
			}
		}
	}
	return InboundMessage{}, false, nil
}
