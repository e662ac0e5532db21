package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/resource"
	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// noiseJPEG encodes a random-noise image, which compresses poorly and yields
// a predictably large payload.
func noiseJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func animatedGIF(t *testing.T, width, height, frames int) []byte {
	t.Helper()
	palette := color.Palette{color.Black, color.White, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}}
	out := &gif.GIF{LoopCount: 0}
	rng := rand.New(rand.NewSource(7))
	for f := 0; f < frames; f++ {
		frame := image.NewPaletted(image.Rect(0, 0, width, height), palette)
		for i := range frame.Pix {
			frame.Pix[i] = uint8(rng.Intn(len(palette)))
		}
		out.Image = append(out.Image, frame)
		out.Delay = append(out.Delay, 10)
		out.Disposal = append(out.Disposal, gif.DisposalNone)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, out))
	return buf.Bytes()
}

func loadedAttachment(t *testing.T, name, mimeType string, data []byte) *domain.Attachment {
	t.Helper()
	resolver := resource.NewMemoryResolver()
	resolver.Put(name, domain.Resource{Name: name, MimeType: mimeType, Bytes: data})
	att := &domain.Attachment{Ref: name}
	require.NoError(t, att.Load(context.Background(), resolver))
	return att
}

func TestShrinkToFit_AlreadyFits(t *testing.T) {
	raw := noiseJPEG(t, 32, 32)
	att := loadedAttachment(t, "small.jpg", "image/jpeg", raw)

	c := NewImageCompressor(testLogger())
	data, mimeType, err := c.ShrinkToFit(context.Background(), att, float64(len(raw))+1)

	assert.NoError(t, err)
	assert.Equal(t, raw, data, "an image inside budget must not be re-encoded")
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestShrinkToFit_OversizedImageFitsAfterScaling(t *testing.T) {
	raw := noiseJPEG(t, 400, 300)
	budget := float64(len(raw)) / 4

	att := loadedAttachment(t, "big.jpg", "image/jpeg", raw)
	c := NewImageCompressor(testLogger())

	data, mimeType, err := c.ShrinkToFit(context.Background(), att, budget)

	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.LessOrEqual(t, float64(len(data)), budget)

	// The result must still decode, at reduced dimensions.
	cfg, _, decErr := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, decErr)
	assert.Less(t, cfg.Width, 400)
}

func TestShrinkToFit_ReleasesAttachmentBytes(t *testing.T) {
	raw := noiseJPEG(t, 200, 200)
	att := loadedAttachment(t, "release.jpg", "image/jpeg", raw)

	c := NewImageCompressor(testLogger())
	_, _, err := c.ShrinkToFit(context.Background(), att, float64(len(raw))/2)

	assert.NoError(t, err)
	assert.Nil(t, att.Bytes(), "the decode pass should release the raw buffer")
}

func TestShrinkToFit_BudgetExhaustedReturnsBestEffort(t *testing.T) {
	raw := noiseJPEG(t, 400, 300)
	att := loadedAttachment(t, "hopeless.jpg", "image/jpeg", raw)

	c := NewImageCompressor(testLogger())
	data, mimeType, err := c.ShrinkToFit(context.Background(), att, 1)

	assert.ErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.NotEmpty(t, data, "best effort bytes still go out")
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestShrinkToFit_UndecodableImagePassesThrough(t *testing.T) {
	raw := []byte("definitely not an image, but comfortably oversized for the budget")
	att := loadedAttachment(t, "corrupt.jpg", "image/jpeg", raw)

	c := NewImageCompressor(testLogger())
	data, mimeType, err := c.ShrinkToFit(context.Background(), att, 10)

	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.Equal(t, raw, data)
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestShrinkToFit_GIFKeepsAnimation(t *testing.T) {
	raw := animatedGIF(t, 120, 120, 6)
	att := loadedAttachment(t, "loop.gif", "image/gif", raw)

	c := NewImageCompressor(testLogger())
	data, mimeType, err := c.ShrinkToFit(context.Background(), att, float64(len(raw))/3)

	if err != nil {
		assert.ErrorIs(t, err, domain.ErrBudgetExhausted)
	}
	assert.Equal(t, "image/gif", mimeType)

	decoded, decErr := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, decErr)
	assert.Len(t, decoded.Image, 6, "every frame survives the re-encode")
	assert.Len(t, decoded.Delay, 6)
	assert.Less(t, decoded.Config.Width, 120)
}
