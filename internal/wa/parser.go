package wa

import (
	"encoding/base64"
	"strings"

	"github.com/matheus3301/wppdesk/internal/chat"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseMessage normalizes a live whatsmeow message event. from is the chat
// address after LID resolution.
func ParseMessage(evt *events.Message, from types.JID) chat.InboundEvent {
	msg := evt.Message
	in := chat.InboundEvent{
		ID:          evt.Info.ID,
		From:        from.ToNonAD().String(),
		PushName:    evt.Info.PushName,
		Timestamp:   evt.Info.Timestamp,
		FromMe:      evt.Info.IsFromMe,
		IsGroup:     evt.Info.IsGroup || from.Server == types.GroupServer,
		IsBroadcast: from.Server == types.BroadcastServer || from.Server == types.NewsletterServer,
		Type:        detectMessageType(msg),
		Body:        extractTextBody(msg),
		Native:      evt,
	}
	if from.IsEmpty() {
		in.From = ""
	}

	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		in.Caption, in.Mimetype = m.GetCaption(), m.GetMimetype()
		in.Payload = encodeThumbnail(m.GetJPEGThumbnail())
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		in.Caption, in.Mimetype = m.GetCaption(), m.GetMimetype()
	case msg.GetAudioMessage() != nil:
		in.Mimetype = msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		in.Caption, in.Filename, in.Mimetype = m.GetCaption(), m.GetFileName(), m.GetMimetype()
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		in.Mimetype = m.GetMimetype()
		in.Payload = encodeThumbnail(m.GetPngThumbnail())
	case msg.GetLocationMessage() != nil:
		m := msg.GetLocationMessage()
		in.Location = &chat.Location{
			Latitude:  m.GetDegreesLatitude(),
			Longitude: m.GetDegreesLongitude(),
			Name:      m.GetName(),
			Address:   m.GetAddress(),
		}
	case msg.GetContactMessage() != nil:
		in.VCard = msg.GetContactMessage().GetVcard()
		if in.Body == "" {
			in.Body = msg.GetContactMessage().GetDisplayName()
		}
	case msg.GetContactsArrayMessage() != nil:
		var cards []string
		for _, cm := range msg.GetContactsArrayMessage().GetContacts() {
			cards = append(cards, cm.GetVcard())
		}
		in.VCard = strings.Join(cards, "\n")
	}
	return in
}

func encodeThumbnail(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// detectMessageType returns the native type tag of a message.
func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "chat"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return "ptt"
		}
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "vcard"
	case msg.GetContactsArrayMessage() != nil:
		return "multi_vcard"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

// parseJID accepts "5511999999999", "+55 11 99999-9999" or a full JID, using
// the same normalization as stored contact identifiers.
func parseJID(s string) (types.JID, error) {
	addr, err := chat.NormalizeAddress(s)
	if err != nil {
		return types.JID{}, err
	}
	return types.ParseJID(addr)
}
