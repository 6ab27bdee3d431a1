// Package mimetypes classifies the MIME types reported by media sniffing.
package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	TextPlain   MIME = "text/plain"
	OctetStream MIME = "application/octet-stream"

	ApplicationPDF MIME = "application/pdf"
	ApplicationZIP MIME = "application/zip"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
)

// Parse drops parameters such as charset. Anything unparsable is Unknown.
func Parse(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt := Parse(detected)
	return mt, mt == expected
}

// IsImage accepts any image/* type the browser can render inline.
func IsImage(detected string) bool {
	return strings.HasPrefix(string(Parse(detected)), "image/")
}
