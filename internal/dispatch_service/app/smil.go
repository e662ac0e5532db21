package app

import (
	"bytes"
	"strings"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// Multipart transactions always carry a compatibility document summarizing
// the other parts. Some carriers and client apps misinterpret multipart
// messages without one.
const (
	compatDocName     = "smil.xml"
	compatDocMimeType = "application/smil"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// buildCompatibilityDoc synthesizes a SMIL document referencing each part.
func buildCompatibilityDoc(parts []domain.EncodedPart) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<smil><head><layout><root-layout/>`)
	buf.WriteString(`<region id="Image" fit="meet" top="0" left="0" height="80%" width="100%"/>`)
	buf.WriteString(`<region id="Text" top="80%" left="0" height="20%" width="100%"/>`)
	buf.WriteString(`</layout></head><body>`)

	for _, part := range parts {
		buf.WriteString(`<par dur="8000ms">`)
		src := xmlEscaper.Replace(part.Name)
		switch {
		case strings.HasPrefix(part.MimeType, "image/"):
			buf.WriteString(`<img src="` + src + `" region="Image"/>`)
		case strings.HasPrefix(part.MimeType, "audio/"):
			buf.WriteString(`<audio src="` + src + `"/>`)
		case strings.HasPrefix(part.MimeType, "video/"):
			buf.WriteString(`<video src="` + src + `" region="Image"/>`)
		case strings.HasPrefix(part.MimeType, "text/"):
			buf.WriteString(`<text src="` + src + `" region="Text"/>`)
		default:
			buf.WriteString(`<ref src="` + src + `"/>`)
		}
		buf.WriteString(`</par>`)
	}

	buf.WriteString(`</body></smil>`)
	return buf.Bytes()
}
