package evolution

import "strings"

// EventMessagesUpsert is the webhook event carrying inbound messages.
const EventMessagesUpsert = "messages.upsert"

// WebhookPayload is the envelope the gateway POSTs on every event.
type WebhookPayload struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     WebhookData `json:"data"`
}

// WebhookData holds the message content of a messages.upsert event.
type WebhookData struct {
	Key     MessageKey     `json:"key"`
	Message MessageContent `json:"message"`
}

// MessageKey identifies the conversation and direction of a message.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageContent carries the text in one of two places depending on whether
// the message was a plain send or a reply/forward.
type MessageContent struct {
	Conversation    string `json:"conversation"`
	ExtendedMessage struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
}

// Text returns the message text regardless of which field carries it.
func (m MessageContent) Text() string {
	if m.Conversation != "" {
		return m.Conversation
	}
	return m.ExtendedMessage.Text
}

// IsGroupJID reports whether jid addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// NumberFromJID strips the server suffix from a JID, leaving the phone
// number. A JID without a suffix is returned unchanged.
func NumberFromJID(jid string) string {
	if at := strings.IndexByte(jid, '@'); at >= 0 {
		return jid[:at]
	}
	return jid
}
