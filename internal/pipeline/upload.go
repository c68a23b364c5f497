package pipeline

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultDownloadName is offered when the upload carried no usable filename.
const DefaultDownloadName = "compressed_video.mp4"

const maxStemLength = 100

// Upload is a request-scoped byte stream with its declared metadata.
type Upload struct {
	Body      io.Reader
	MediaType string
	Filename  string
}

// AcceptMediaType reports whether a declared media type may be ingested.
// A missing type is treated as application/octet-stream.
func AcceptMediaType(mediaType string) bool {
	if strings.TrimSpace(mediaType) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "video/") || mt == "application/octet-stream"
}

// DownloadName derives "<stem>_compressed.mp4" from an uploaded filename.
// Directory parts are dropped and anything outside a conservative character
// set is replaced, so the result is safe inside a Content-Disposition header.
func DownloadName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.Trim(b.String(), "._")
	if len(clean) > maxStemLength {
		clean = clean[:maxStemLength]
	}
	if clean == "" {
		return DefaultDownloadName
	}
	return clean + "_compressed.mp4"
}

// inputSuffix keeps the upload's extension on the input artifact so tools
// that sniff by name behave.
func inputSuffix(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
