package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// MaxCompressAttempts bounds the re-encode loop. The scale schedule
// (0.9 - attempt*0.2) turns non-positive after five attempts anyway; the
// explicit cap makes the bound testable and tunable on its own.
const MaxCompressAttempts = 5

const jpegQuality = 80

// ImageCompressor iteratively re-encodes oversized images to fit an
// allocated sub-budget.
type ImageCompressor struct {
	logger *slog.Logger
}

func NewImageCompressor(logger *slog.Logger) *ImageCompressor {
	return &ImageCompressor{logger: logger.With("component", "image_compressor")}
}

// ShrinkToFit returns bytes for the attachment's image that fit inside
// budget, along with the output MIME type. An image already inside budget is
// returned unmodified. When the budget cannot be met the best-effort (still
// oversized) result is returned together with domain.ErrBudgetExhausted; the
// send continues with it rather than failing.
func (c *ImageCompressor) ShrinkToFit(ctx context.Context, att *domain.Attachment, budget float64) ([]byte, string, error) {
	raw := att.Bytes()
	rawSize := len(raw)

	if float64(rawSize) <= budget {
		return raw, att.MimeType, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return raw, att.MimeType, fmt.Errorf("decode image dimensions for %q: %w", att.Name, err)
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		return raw, att.MimeType, fmt.Errorf("image %q has degenerate dimensions %dx%d", att.Name, width, height)
	}
	aspectRatio := float64(width) / float64(height)

	var (
		animated = att.IsAnimated()
		frames   *gif.GIF
		pixels   image.Image
	)
	if animated {
		frames, err = gif.DecodeAll(bytes.NewReader(raw))
	} else {
		pixels, _, err = image.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return raw, att.MimeType, fmt.Errorf("decode image %q: %w", att.Name, err)
	}

	// The attachment's own hold on the bytes is no longer needed; multiple
	// large attachments may be live during the proportional-allocation pass.
	att.Release()

	best := raw
	bestMime := att.MimeType

	for attempt := 0; attempt < MaxCompressAttempts; attempt++ {
		scale := budget / float64(rawSize) * (0.9 - float64(attempt)*0.2)
		if scale <= 0 {
			break
		}

		newArea := scale * float64(width) * float64(height)
		newWidth := int(math.Sqrt(newArea * aspectRatio))
		if newWidth < 1 {
			newWidth = 1
		}
		newHeight := int(float64(newWidth) / aspectRatio)
		if newHeight < 1 {
			newHeight = 1
		}

		var scaled []byte
		var scaledMime string
		if animated {
			scaled, err = scaleGIF(frames, newWidth, newHeight)
			scaledMime = "image/gif"
		} else {
			scaled, err = scaleStatic(pixels, newWidth, newHeight)
			scaledMime = "image/jpeg"
		}
		if err != nil {
			return best, bestMime, fmt.Errorf("re-encode image %q: %w", att.Name, err)
		}

		c.logger.DebugContext(ctx, "compression attempt",
			"name", att.Name,
			"attempt", attempt+1,
			"scaled_kb", len(scaled)/1024,
			"budget_kb", int(budget)/1024,
			"dimensions", fmt.Sprintf("%dx%d -> %dx%d", width, height, newWidth, newHeight))

		best = scaled
		bestMime = scaledMime
		if float64(len(scaled)) <= budget {
			return scaled, scaledMime, nil
		}
	}

	c.logger.WarnContext(ctx, "failed to compress image into budget",
		"name", att.Name,
		"raw_kb", rawSize/1024,
		"budget_kb", int(budget)/1024,
		"best_kb", len(best)/1024)
	return best, bestMime, domain.ErrBudgetExhausted
}

// scaleStatic resizes to the given dimensions and re-encodes as JPEG.
func scaleStatic(src image.Image, width, height int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scaleGIF resizes every frame while preserving per-frame palettes, delays
// and disposal, so animation survives the re-encode.
func scaleGIF(src *gif.GIF, width, height int) ([]byte, error) {
	out := &gif.GIF{
		LoopCount: src.LoopCount,
		Config:    image.Config{Width: width, Height: height},
	}

	for i, frame := range src.Image {
		dst := image.NewPaletted(image.Rect(0, 0, width, height), frame.Palette)
		xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)
		out.Image = append(out.Image, dst)
		out.Delay = append(out.Delay, src.Delay[i])
		if src.Disposal != nil {
			out.Disposal = append(out.Disposal, src.Disposal[i])
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
