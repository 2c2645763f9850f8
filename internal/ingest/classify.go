package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/wppdesk/internal/chat"
)

// Message types persisted for inbound events.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeLocation = "location"
	TypeContact  = "contact"
	TypeSticker  = "sticker"
)

var (
	vcardName  = regexp.MustCompile(`(?m)^FN(?:;[^:]*)?:(.+)$`)
	vcardPhone = regexp.MustCompile(`(?m)^(?:item\d+\.)?TEL(?:;[^:]*)?:(.+)$`)
)

// Classify maps the client's native type tag to a message type and derives
// the text content stored for it.
func Classify(evt chat.InboundEvent) (msgType, content string) {
	switch evt.Type {
	case "chat":
		return TypeText, evt.Body
	case "image":
		return TypeImage, evt.Caption
	case "video":
		return TypeVideo, evt.Caption
	case "document":
		if evt.Caption != "" {
			return TypeDocument, evt.Caption
		}
		return TypeDocument, evt.Filename
	case "audio", "ptt":
		return TypeAudio, ""
	case "sticker":
		return TypeSticker, ""
	case "location":
		return TypeLocation, formatLocation(evt.Location)
	case "vcard", "multi_vcard":
		if c := formatVCard(evt.VCard); c != "" {
			return TypeContact, c
		}
		return TypeContact, evt.Body
	default:
		return TypeText, evt.Body
	}
}

func formatLocation(l *chat.Location) string {
	if l == nil {
		return "📍"
	}
	s := fmt.Sprintf("📍 %.6f, %.6f", l.Latitude, l.Longitude)
	label := strings.TrimSpace(l.Name)
	if label == "" {
		label = strings.TrimSpace(l.Address)
	}
	if label != "" {
		s += " (" + label + ")"
	}
	return s
}

// formatVCard renders "name: phone" from the first card.
func formatVCard(card string) string {
	card = strings.ReplaceAll(card, "\r\n", "\n")
	var name, phone string
	if m := vcardName.FindStringSubmatch(card); m != nil {
		name = strings.TrimSpace(m[1])
	}
	if m := vcardPhone.FindStringSubmatch(card); m != nil {
		phone = strings.TrimSpace(m[1])
	}
	switch {
	case name != "" && phone != "":
		return name + ": " + phone
	case name != "":
		return name
	default:
		return phone
	}
}

// preview truncates s to n runes for the contact list.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
