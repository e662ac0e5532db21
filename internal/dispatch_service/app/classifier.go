package app

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// Transport frame limits for the two SMS alphabets.
const (
	gsm7SingleSegmentLimit = 160
	gsm7ConcatSegmentLimit = 153
	ucs2SingleSegmentLimit = 70
	ucs2ConcatSegmentLimit = 67

	// Bodies needing more than this many single-segment frames get promoted
	// to a multipart transaction when the preference is enabled.
	longTextPageLimit = 3
)

// GSM 03.38 basic character set. Anything outside basic+extended forces the
// whole body onto the UCS-2 alphabet.
const gsm7Basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// Extended set characters are escaped on the wire and count as two septets.
const gsm7Extended = "^{}\\[~]|€"

// SegmentCount returns the number of transport frames a plain-text encoding
// of body requires.
func SegmentCount(body string) int {
	if body == "" {
		return 1
	}

	septets := 0
	gsmOnly := true
	for _, r := range body {
		switch {
		case strings.ContainsRune(gsm7Basic, r):
			septets++
		case strings.ContainsRune(gsm7Extended, r):
			septets += 2
		default:
			gsmOnly = false
		}
		if !gsmOnly {
			break
		}
	}

	if gsmOnly {
		if septets <= gsm7SingleSegmentLimit {
			return 1
		}
		return (septets + gsm7ConcatSegmentLimit - 1) / gsm7ConcatSegmentLimit
	}

	units := len(utf16.Encode([]rune(body)))
	if units <= ucs2SingleSegmentLimit {
		return 1
	}
	return (units + ucs2ConcatSegmentLimit - 1) / ucs2ConcatSegmentLimit
}

// StripAccents folds accented characters to their base form so a body stays
// on the 7-bit alphabet. Returns the input unchanged if folding fails.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ClassifyInput carries everything the classifier looks at.
type ClassifyInput struct {
	Body                string
	AttachmentCount     int
	RecipientCount      int
	SendAsGroup         bool
	LongTextAsMultipart bool
	StripAccents        bool
}

// Classify decides between a single-segment and a multipart transaction.
// Multipart when any of: attachments present; multiple recipients sent as a
// group; or long-text preference enabled and the body needs more than
// longTextPageLimit single-segment frames. Total: always returns one of the
// two kinds.
func Classify(in ClassifyInput) domain.TransactionKind {
	body := in.Body
	if in.StripAccents {
		body = StripAccents(body)
	}

	if in.AttachmentCount > 0 ||
		(in.RecipientCount > 1 && in.SendAsGroup) ||
		(in.LongTextAsMultipart && SegmentCount(body) > longTextPageLimit) {
		return domain.TransactionMultipart
	}
	return domain.TransactionSingleSegment
}
