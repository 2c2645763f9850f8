package wa

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/matheus3301/wppdesk/internal/chat"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

var errNoMedia = errors.New("whatsapp: message has no downloadable media")

// downloadableOf returns the attachment of a message and its media type.
func downloadableOf(msg *waE2E.Message) (whatsmeow.DownloadableMessage, whatsmeow.MediaType, bool) {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage(), whatsmeow.MediaImage, true
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage(), whatsmeow.MediaVideo, true
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage(), whatsmeow.MediaAudio, true
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage(), whatsmeow.MediaDocument, true
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage(), whatsmeow.MediaImage, true
	}
	return nil, "", false
}

func nativeMessage(evt chat.InboundEvent) (*events.Message, error) {
	native, ok := evt.Native.(*events.Message)
	if !ok || native == nil || native.Message == nil {
		return nil, errNoMedia
	}
	return native, nil
}

// DecryptMedia downloads and decrypts the attachment through the message itself.
func (c *Client) DecryptMedia(ctx context.Context, evt chat.InboundEvent) ([]byte, error) {
	native, err := nativeMessage(evt)
	if err != nil {
		return nil, err
	}
	return c.wm.DownloadAny(ctx, native.Message)
}

// DownloadMedia downloads the specific attachment proto of the message.
func (c *Client) DownloadMedia(ctx context.Context, evt chat.InboundEvent) ([]byte, error) {
	native, err := nativeMessage(evt)
	if err != nil {
		return nil, err
	}
	d, _, ok := downloadableOf(native.Message)
	if !ok {
		return nil, errNoMedia
	}
	return c.wm.Download(ctx, d)
}

// FetchRaw re-fetches a recently received attachment by message id using
// only its direct path and keys.
func (c *Client) FetchRaw(ctx context.Context, messageID string) ([]byte, error) {
	evt, ok := c.recent.get(messageID)
	if !ok {
		return nil, fmt.Errorf("message %s not in recent cache", messageID)
	}
	d, mediaType, ok := downloadableOf(evt.Message)
	if !ok {
		return nil, errNoMedia
	}
	length := -1
	if l, ok := d.(interface{ GetFileLength() uint64 }); ok {
		length = int(l.GetFileLength())
	}
	return c.wm.DownloadMediaWithPath(ctx, d.GetDirectPath(), d.GetFileEncSHA256(), d.GetFileSHA256(), d.GetMediaKey(), length, mediaType, "")
}

// ProfilePictureURL returns the full-size profile picture URL, or "" if unset.
func (c *Client) ProfilePictureURL(ctx context.Context, identifier string) (string, error) {
	return c.pictureURL(ctx, identifier, false)
}

// ContactPictureURL returns the preview picture URL of a contact, or "" if unset.
func (c *Client) ContactPictureURL(ctx context.Context, identifier string) (string, error) {
	return c.pictureURL(ctx, identifier, true)
}

func (c *Client) pictureURL(ctx context.Context, identifier string, preview bool) (string, error) {
	jid, err := parseJID(identifier)
	if err != nil {
		return "", err
	}
	info, err := c.wm.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{Preview: preview})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

type upload struct {
	resp     whatsmeow.UploadResponse
	mimetype string
}

func (c *Client) upload(ctx context.Context, m chat.Media, mediaType whatsmeow.MediaType) (*upload, error) {
	data := m.Data
	if len(data) == 0 && m.Path != "" {
		var err error
		if data, err = os.ReadFile(m.Path); err != nil {
			return nil, fmt.Errorf("read media: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("empty media payload")
	}
	mt := m.Mimetype
	if mt == "" {
		mt = mimetype.Detect(data).String()
	}
	resp, err := c.wm.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	return &upload{resp: resp, mimetype: mt}, nil
}

// SendImage uploads and sends an image with its caption.
func (c *Client) SendImage(ctx context.Context, to string, m chat.Media) (string, error) {
	up, err := c.upload(ctx, m, whatsmeow.MediaImage)
	if err != nil {
		return "", err
	}
	return c.send(ctx, to, &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(m.Caption),
		Mimetype:      proto.String(up.mimetype),
		URL:           &up.resp.URL,
		DirectPath:    &up.resp.DirectPath,
		MediaKey:      up.resp.MediaKey,
		FileEncSHA256: up.resp.FileEncSHA256,
		FileSHA256:    up.resp.FileSHA256,
		FileLength:    &up.resp.FileLength,
	}})
}

// SendFile uploads and sends a document.
func (c *Client) SendFile(ctx context.Context, to string, m chat.Media) (string, error) {
	up, err := c.upload(ctx, m, whatsmeow.MediaDocument)
	if err != nil {
		return "", err
	}
	return c.send(ctx, to, &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       proto.String(m.Caption),
		FileName:      proto.String(m.Filename),
		Title:         proto.String(m.Filename),
		Mimetype:      proto.String(up.mimetype),
		URL:           &up.resp.URL,
		DirectPath:    &up.resp.DirectPath,
		MediaKey:      up.resp.MediaKey,
		FileEncSHA256: up.resp.FileEncSHA256,
		FileSHA256:    up.resp.FileSHA256,
		FileLength:    &up.resp.FileLength,
	}})
}

// SendVoice sends audio as a push-to-talk voice note.
func (c *Client) SendVoice(ctx context.Context, to string, m chat.Media) (string, error) {
	if m.Mimetype == "" {
		m.Mimetype = "audio/ogg; codecs=opus"
	}
	return c.SendAudio(ctx, to, m, true)
}

// SendAudio sends an audio attachment, flagged as a voice note when voice is set.
func (c *Client) SendAudio(ctx context.Context, to string, m chat.Media, voice bool) (string, error) {
	up, err := c.upload(ctx, m, whatsmeow.MediaAudio)
	if err != nil {
		return "", err
	}
	return c.send(ctx, to, &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		PTT:           proto.Bool(voice),
		Mimetype:      proto.String(up.mimetype),
		URL:           &up.resp.URL,
		DirectPath:    &up.resp.DirectPath,
		MediaKey:      up.resp.MediaKey,
		FileEncSHA256: up.resp.FileEncSHA256,
		FileSHA256:    up.resp.FileSHA256,
		FileLength:    &up.resp.FileLength,
	}})
}

// SendVideo uploads and sends a video with its caption.
func (c *Client) SendVideo(ctx context.Context, to string, m chat.Media) (string, error) {
	up, err := c.upload(ctx, m, whatsmeow.MediaVideo)
	if err != nil {
		return "", err
	}
	return c.send(ctx, to, &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
		Caption:       proto.String(m.Caption),
		Mimetype:      proto.String(up.mimetype),
		URL:           &up.resp.URL,
		DirectPath:    &up.resp.DirectPath,
		MediaKey:      up.resp.MediaKey,
		FileEncSHA256: up.resp.FileEncSHA256,
		FileSHA256:    up.resp.FileSHA256,
		FileLength:    &up.resp.FileLength,
	}})
}
