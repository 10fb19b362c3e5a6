package chat

import (
	"encoding/json"
	"strings"

	"PPGate/tools/errs"
)

// InboundChat is the client → server chat payload. The legacy field names
// (recipient, file{name,data}) are accepted as aliases.
type InboundChat struct {
	RecipientID string             `json:"recipientId"`
	Text        string             `json:"text,omitempty"`
	Attachment  *InboundAttachment `json:"attachment,omitempty"`

	Recipient string             `json:"recipient,omitempty"`
	File      *InboundAttachment `json:"file,omitempty"`
}

type InboundAttachment struct {
	Name       string `json:"name"`
	DataBase64 string `json:"dataBase64"`
	Data       string `json:"data,omitempty"`
}

// OutboundChat is pushed to the recipient's live connections once the message
// is persisted. Delivery is best effort: a frame dropped on a full send queue
// is still returned by GET /messages/:userId.
type OutboundChat struct {
	SenderID      string `json:"senderId"`
	RecipientID   string `json:"recipientId"`
	Text          string `json:"text,omitempty"`
	AttachmentRef string `json:"attachmentRef,omitempty"`
	MessageID     string `json:"messageId"`
}

type RosterEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RosterFrame is the presence broadcast.
type RosterFrame struct {
	Online []RosterEntry `json:"online"`
}

// ParseInbound decodes and validates a chat payload. Any violation is
// reported as errs.ErrMalformedPayload.
func ParseInbound(raw []byte) (*InboundChat, error) {
	var in InboundChat
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errs.ErrMalformedPayload.Cause(err)
	}
	if in.RecipientID == "" {
		in.RecipientID = in.Recipient
	}
	if in.Attachment == nil {
		in.Attachment = in.File
	}
	in.Recipient, in.File = "", nil
	if a := in.Attachment; a != nil && a.DataBase64 == "" {
		a.DataBase64 = a.Data
		a.Data = ""
	}

	in.RecipientID = strings.TrimSpace(in.RecipientID)
	if in.RecipientID == "" {
		return nil, errs.ErrMalformedPayload.WrapMsg("missing recipientId")
	}
	if in.Text == "" && in.Attachment == nil {
		return nil, errs.ErrMalformedPayload.WrapMsg("neither text nor attachment")
	}
	if in.Attachment != nil && in.Attachment.DataBase64 == "" {
		return nil, errs.ErrMalformedPayload.WrapMsg("empty attachment")
	}
	return &in, nil
}
