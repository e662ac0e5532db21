package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

func TestSegmentCount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty body is one segment", body: "", want: 1},
		{name: "short gsm text", body: "hello there", want: 1},
		{name: "exactly 160 gsm chars", body: strings.Repeat("a", 160), want: 1},
		{name: "161 gsm chars need two concat frames", body: strings.Repeat("a", 161), want: 2},
		{name: "306 gsm chars fill two concat frames", body: strings.Repeat("a", 306), want: 2},
		{name: "307 gsm chars spill into a third", body: strings.Repeat("a", 307), want: 3},
		{name: "extended chars count double", body: strings.Repeat("{", 80), want: 1},
		{name: "81 extended chars exceed one frame", body: strings.Repeat("{", 81), want: 2},
		{name: "unicode body uses ucs2 limits", body: strings.Repeat("好", 70), want: 1},
		{name: "71 unicode chars need two frames", body: strings.Repeat("好", 71), want: 2},
		{name: "emoji counts two utf16 units", body: strings.Repeat("😀", 35), want: 1},
		{name: "36 emoji exceed one ucs2 frame", body: strings.Repeat("😀", 36), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentCount(tt.body))
		})
	}
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "aeiou", StripAccents("áéíóú"))
	assert.Equal(t, "Zazvorove pivo", StripAccents("Zázvorové pivo"))
	assert.Equal(t, "plain ascii", StripAccents("plain ascii"))
}

func TestClassify(t *testing.T) {
	longBody := strings.Repeat("a", 4*gsm7SingleSegmentLimit)

	tests := []struct {
		name string
		in   ClassifyInput
		want domain.TransactionKind
	}{
		{
			name: "plain text single recipient",
			in:   ClassifyInput{Body: "hi", RecipientCount: 1},
			want: domain.TransactionSingleSegment,
		},
		{
			name: "attachment forces multipart",
			in:   ClassifyInput{Body: "hi", RecipientCount: 1, AttachmentCount: 1},
			want: domain.TransactionMultipart,
		},
		{
			name: "attachment with empty body still multipart",
			in:   ClassifyInput{AttachmentCount: 2, RecipientCount: 1},
			want: domain.TransactionMultipart,
		},
		{
			name: "multiple recipients as group is multipart",
			in:   ClassifyInput{Body: "hi", RecipientCount: 3, SendAsGroup: true},
			want: domain.TransactionMultipart,
		},
		{
			name: "multiple recipients not as group stays single segment",
			in:   ClassifyInput{Body: "hi", RecipientCount: 3, SendAsGroup: false},
			want: domain.TransactionSingleSegment,
		},
		{
			name: "group flag with one recipient stays single segment",
			in:   ClassifyInput{Body: "hi", RecipientCount: 1, SendAsGroup: true},
			want: domain.TransactionSingleSegment,
		},
		{
			name: "long body without preference stays single segment",
			in:   ClassifyInput{Body: longBody, RecipientCount: 1},
			want: domain.TransactionSingleSegment,
		},
		{
			name: "long body with preference promotes to multipart",
			in:   ClassifyInput{Body: longBody, RecipientCount: 1, LongTextAsMultipart: true},
			want: domain.TransactionMultipart,
		},
		{
			name: "three pages with preference stays single segment",
			in:   ClassifyInput{Body: strings.Repeat("a", 3*gsm7ConcatSegmentLimit), RecipientCount: 1, LongTextAsMultipart: true},
			want: domain.TransactionSingleSegment,
		},
		{
			name: "accent stripping happens before counting",
			in: ClassifyInput{
				// UCS-2 would need >3 frames; the stripped GSM body does not.
				Body:                strings.Repeat("á", 250),
				RecipientCount:      1,
				LongTextAsMultipart: true,
				StripAccents:        true,
			},
			want: domain.TransactionSingleSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}
