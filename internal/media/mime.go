package media

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var extByMIME = map[string]string{
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"video/mp4":          "mp4",
	"video/3gpp":         "3gp",
	"video/quicktime":    "mov",
	"audio/ogg":          "ogg",
	"audio/mpeg":         "mp3",
	"audio/mp4":          "m4a",
	"audio/aac":          "aac",
	"audio/amr":          "amr",
	"audio/wav":          "wav",
	"application/pdf":    "pdf",
	"application/zip":    "zip",
	"text/plain":         "txt",
	"text/csv":           "csv",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
}

type typeDefault struct {
	mime string
	ext  string
}

var defaults = map[string]typeDefault{
	"image":    {"image/jpeg", "jpg"},
	"sticker":  {"image/webp", "webp"},
	"video":    {"video/mp4", "mp4"},
	"audio":    {"audio/ogg", "ogg"},
	"document": {"application/octet-stream", "bin"},
}

// IsMedia reports whether messages of type t carry an attachment.
func IsMedia(t string) bool {
	_, ok := defaults[t]
	return ok
}

// baseMIME strips parameters such as "; codecs=opus".
func baseMIME(m string) string {
	if m == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(m); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(m, ";", 2)[0]))
}

// extension picks the file extension for data of message type t. An empty
// declared MIME is sniffed from the content.
func extension(t, declared string, data []byte) string {
	m := baseMIME(declared)
	if m == "" && len(data) > 0 {
		detected := mimetype.Detect(data)
		if ext, ok := extByMIME[baseMIME(detected.String())]; ok {
			return ext
		}
		if ext := strings.TrimPrefix(detected.Extension(), "."); ext != "" && detected.String() != "application/octet-stream" {
			return ext
		}
	}
	if ext, ok := extByMIME[m]; ok {
		return ext
	}
	return defaults[t].ext
}

// inlineMIME is the declared MIME or the default of the type.
func inlineMIME(t, declared string) string {
	if m := baseMIME(declared); m != "" {
		return m
	}
	return defaults[t].mime
}
