package chat

import "context"

// Media is an outbound attachment. Data wins over Path when both are set.
type Media struct {
	Data     []byte
	Path     string
	Filename string
	Mimetype string
	Caption  string
}

type ImageSender interface {
	SendImage(ctx context.Context, to string, m Media) (string, error)
}

type FileSender interface {
	SendFile(ctx context.Context, to string, m Media) (string, error)
}

type VoiceSender interface {
	SendVoice(ctx context.Context, to string, m Media) (string, error)
}

// AudioSender sends audio, optionally flagged as a voice note.
type AudioSender interface {
	SendAudio(ctx context.Context, to string, m Media, voice bool) (string, error)
}

type VideoSender interface {
	SendVideo(ctx context.Context, to string, m Media) (string, error)
}

// MediaDecrypter downloads and decrypts the attachment of an inbound event
// through its native reference.
type MediaDecrypter interface {
	DecryptMedia(ctx context.Context, evt InboundEvent) ([]byte, error)
}

// MediaDownloader is a generic download path for the attachment of an event.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, evt InboundEvent) ([]byte, error)
}

// RawFetcher fetches an attachment buffer by message id.
type RawFetcher interface {
	FetchRaw(ctx context.Context, messageID string) ([]byte, error)
}

type ProfilePictureFetcher interface {
	ProfilePictureURL(ctx context.Context, identifier string) (string, error)
}

type ContactPictureFetcher interface {
	ContactPictureURL(ctx context.Context, identifier string) (string, error)
}

type DirectAvatarFetcher interface {
	DirectAvatarURL(ctx context.Context, identifier string) (string, error)
}

// Descriptor holds the optional capabilities of one client. Nil fields are
// unsupported.
type Descriptor struct {
	Image ImageSender
	File  FileSender
	Voice VoiceSender
	Audio AudioSender
	Video VideoSender

	Decrypt  MediaDecrypter
	Download MediaDownloader
	Raw      RawFetcher

	Profile       ProfilePictureFetcher
	ContactAvatar ContactPictureFetcher
	DirectAvatar  DirectAvatarFetcher
}

// Describe resolves the optional capabilities of c.
func Describe(c Client) Descriptor {
	var d Descriptor
	d.Image, _ = c.(ImageSender)
	d.File, _ = c.(FileSender)
	d.Voice, _ = c.(VoiceSender)
	d.Audio, _ = c.(AudioSender)
	d.Video, _ = c.(VideoSender)
	d.Decrypt, _ = c.(MediaDecrypter)
	d.Download, _ = c.(MediaDownloader)
	d.Raw, _ = c.(RawFetcher)
	d.Profile, _ = c.(ProfilePictureFetcher)
	d.ContactAvatar, _ = c.(ContactPictureFetcher)
	d.DirectAvatar, _ = c.(DirectAvatarFetcher)
	return d
}

// Names lists the supported capabilities, for logging.
func (d Descriptor) Names() []string {
	var names []string
	add := func(ok bool, name string) {
		if ok {
			names = append(names, name)
		}
	}
	add(d.Image != nil, "image")
	add(d.File != nil, "file")
	add(d.Voice != nil, "voice")
	add(d.Audio != nil, "audio")
	add(d.Video != nil, "video")
	add(d.Decrypt != nil, "decrypt")
	add(d.Download != nil, "download")
	add(d.Raw != nil, "raw")
	add(d.Profile != nil, "profile_picture")
	add(d.ContactAvatar != nil, "contact_picture")
	add(d.DirectAvatar != nil, "direct_avatar")
	return names
}
