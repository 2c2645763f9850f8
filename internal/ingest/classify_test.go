package ingest

import (
	"testing"

	"github.com/matheus3301/wppdesk/internal/chat"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		evt         chat.InboundEvent
		wantType    string
		wantContent string
	}{
		{"text", chat.InboundEvent{Type: "chat", Body: "oi"}, TypeText, "oi"},
		{"image caption", chat.InboundEvent{Type: "image", Caption: "foto"}, TypeImage, "foto"},
		{"document filename", chat.InboundEvent{Type: "document", Filename: "nota.pdf"}, TypeDocument, "nota.pdf"},
		{"document caption wins", chat.InboundEvent{Type: "document", Caption: "segue", Filename: "nota.pdf"}, TypeDocument, "segue"},
		{"voice note", chat.InboundEvent{Type: "ptt", Body: "ignored"}, TypeAudio, ""},
		{"audio", chat.InboundEvent{Type: "audio"}, TypeAudio, ""},
		{"sticker", chat.InboundEvent{Type: "sticker"}, TypeSticker, ""},
		{"location", chat.InboundEvent{Type: "location", Location: &chat.Location{Latitude: -23.55, Longitude: -46.633333, Name: "Loja Centro"}},
			TypeLocation, "📍 -23.550000, -46.633333 (Loja Centro)"},
		{"location address", chat.InboundEvent{Type: "location", Location: &chat.Location{Latitude: 1, Longitude: 2, Address: "Rua A, 10"}},
			TypeLocation, "📍 1.000000, 2.000000 (Rua A, 10)"},
		{"vcard", chat.InboundEvent{Type: "vcard", VCard: "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Bob Silva\r\nitem1.TEL;waid=5511:+55 11 99999-0000\r\nEND:VCARD"},
			TypeContact, "Bob Silva: +55 11 99999-0000"},
		{"vcard fallback", chat.InboundEvent{Type: "multi_vcard", Body: "2 contacts"}, TypeContact, "2 contacts"},
		{"unknown", chat.InboundEvent{Type: "unknown", Body: "?"}, TypeText, "?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotContent := Classify(tt.evt)
			if gotType != tt.wantType || gotContent != tt.wantContent {
				t.Errorf("Classify() = %q, %q; want %q, %q", gotType, gotContent, tt.wantType, tt.wantContent)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "é"
	}
	if got := preview(long, 100); len([]rune(got)) != 100 {
		t.Errorf("preview rune length = %d", len([]rune(got)))
	}
	if got := preview("short", 100); got != "short" {
		t.Errorf("preview = %q", got)
	}
}
