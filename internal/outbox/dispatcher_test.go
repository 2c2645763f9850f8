package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matheus3301/wppdesk/internal/chat"
	"github.com/matheus3301/wppdesk/internal/chat/chattest"
	"github.com/matheus3301/wppdesk/internal/sessions"
	"go.uber.org/zap"
)

// textOnly hides every optional capability of the wrapped client.
type textOnly struct{ chat.Client }

func testDispatcher(c chat.Client) (*Dispatcher, *sessions.Registry) {
	reg := sessions.NewRegistry()
	reg.Set(sessions.Entry{ID: "loja", Client: c, Caps: chat.Describe(c)})
	return NewDispatcher(reg, zap.NewNop()), reg
}

func TestSendUnknownSession(t *testing.T) {
	d, _ := testDispatcher(chattest.New("1"))
	_, err := d.Send(context.Background(), "missing", "5511@s.whatsapp.net", "oi", Options{})
	var nf *SessionNotFoundError
	if !errors.As(err, &nf) || nf.SessionID != "missing" {
		t.Fatalf("error = %v, want SessionNotFoundError", err)
	}
}

func TestSendText(t *testing.T) {
	f := chattest.New("1")
	d, _ := testDispatcher(f)

	res, err := d.Send(context.Background(), "loja", "5511@s.whatsapp.net", "Olá", Options{Signature: "Ana"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.MessageID != "FAKE1" {
		t.Errorf("result = %+v", res)
	}
	if _, err := d.Send(context.Background(), "loja", "5511@s.whatsapp.net", "  ", Options{}); err != nil {
		t.Fatal(err)
	}

	sent := f.Sent()
	if sent[0].Text != "Olá\n\n_Ana_" {
		t.Errorf("signed text = %q", sent[0].Text)
	}
	if sent[1].Text != EmptyPlaceholder {
		t.Errorf("empty text = %q", sent[1].Text)
	}
}

func TestSendMediaPassThrough(t *testing.T) {
	f := chattest.New("1")
	d, _ := testDispatcher(f)
	ctx := context.Background()

	for _, kind := range []string{KindImage, KindDocument, KindVideo} {
		if _, err := d.Send(ctx, "loja", "x", "caption", Options{Kind: kind, Media: chat.Media{Path: "/tmp/a.bin"}}); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
	got := f.Sent()
	want := []string{"image", "file", "video"}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("send %d kind = %s, want %s", i, got[i].Kind, k)
		}
	}
	if got[0].Media.Caption != "caption" {
		t.Errorf("caption = %q", got[0].Media.Caption)
	}
}

func TestSendAudioDocumentAsLink(t *testing.T) {
	f := chattest.New("1")
	d, _ := testDispatcher(f)

	_, err := d.Send(context.Background(), "loja", "x", "", Options{Kind: KindDocument, Media: chat.Media{Path: "/media/voz.ogg"}})
	if err != nil {
		t.Fatal(err)
	}
	sent := f.Sent()
	if sent[0].Kind != "text" || !strings.Contains(sent[0].Text, "/media/voz.ogg") {
		t.Errorf("sent = %+v, want playback link text", sent[0])
	}
}

func TestSendAudioChain(t *testing.T) {
	tests := []struct {
		name     string
		fail     []string
		wantKind string
	}{
		{"voice", nil, "voice"},
		{"audio fallback", []string{"voice"}, "audio"},
		{"file fallback", []string{"voice", "audio"}, "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := chattest.New("1")
			for _, k := range tt.fail {
				f.FailSend(k, errors.New(k+" rejected"))
			}
			d, _ := testDispatcher(f)
			if _, err := d.Send(context.Background(), "loja", "x", "", Options{Kind: KindAudio, Media: chat.Media{Data: []byte("ogg")}}); err != nil {
				t.Fatal(err)
			}
			sent := f.Sent()
			if len(sent) != 1 || sent[0].Kind != tt.wantKind {
				t.Fatalf("sent = %+v, want one %s send", sent, tt.wantKind)
			}
			if tt.wantKind == "audio" && !sent[0].Voice {
				t.Error("audio fallback not flagged as voice")
			}
			if tt.wantKind == "file" && sent[0].Media.Caption == "" {
				t.Error("file fallback without caption")
			}
		})
	}
}

func TestSendAudioTotalFailure(t *testing.T) {
	f := chattest.New("1")
	for _, k := range []string{"voice", "audio", "file"} {
		f.FailSend(k, errors.New("rejected"))
	}
	d, _ := testDispatcher(f)

	_, err := d.Send(context.Background(), "loja", "x", "", Options{Kind: KindAudio})
	var se *SendError
	if !errors.As(err, &se) || se.Kind != KindAudio {
		t.Fatalf("error = %v, want audio SendError", err)
	}
}

func TestSendUnsupportedCapability(t *testing.T) {
	d, _ := testDispatcher(textOnly{chattest.New("1")})

	_, err := d.Send(context.Background(), "loja", "x", "", Options{Kind: KindImage})
	var se *SendError
	if !errors.As(err, &se) || !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want unsupported SendError", err)
	}
}
