// Package imaging decodes downloaded pictures, normalizes their pixels and
// re-encodes them for storage.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp" // register the WebP decoder

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// DefaultFormat is used when neither configuration nor the URL name a format.
const DefaultFormat = "png"

// DefaultMaxPixels bounds the declared area of a picture before it is decoded.
const DefaultMaxPixels = 64 << 20

const jpegQuality = 90

var jpegAliases = map[string]bool{"jpg": true, "jpeg": true, "jfif": true, "pjpeg": true, "pjp": true}

// Codec implements crawler.ImageCodec with the standard library encoders and
// golang.org/x/image for WebP and BMP.
type Codec struct {
	maxPixels int64
}

// New returns a Codec that refuses pictures larger than DefaultMaxPixels.
func New() *Codec {
	return NewWithLimit(DefaultMaxPixels)
}

// NewWithLimit returns a Codec that refuses pictures whose header declares
// more than maxPixels pixels. A non-positive limit falls back to the default.
func NewWithLimit(maxPixels int64) *Codec {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Codec{maxPixels: maxPixels}
}

// Supported reports whether format can be used as an output format.
func Supported(format string) bool {
	switch f := strings.ToLower(format); {
	case jpegAliases[f]:
		return true
	default:
		return f == "png" || f == "gif" || f == "bmp" || f == "webp"
	}
}

// Decode parses data and returns an opaque 8-bit NRGBA image. The header is
// read first so oversized pictures fail before any pixel buffer is allocated.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s declares %dx%d", crawler.ErrDecode, format, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > c.maxPixels {
		return nil, fmt.Errorf("%w: %s declares %dx%d, over the %d pixel limit",
			crawler.ErrDecode, format, cfg.Width, cfg.Height, c.maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrDecode, err)
	}
	return Opaque(img), nil
}

// Opaque copies img into an NRGBA image with every alpha value set to 255.
// Color channels are kept as they are, so transparent regions take the color
// stored beneath them.
func Opaque(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			px.A = 0xff
			out.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, px)
		}
	}
	return out
}

// Encode writes img in format. WebP has no encoder and is stored as PNG.
func (c *Codec) Encode(img image.Image, format string) (crawler.EncodedImage, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = DefaultFormat
	}

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         = format
	)
	switch {
	case jpegAliases[format]:
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case format == "png" || format == "webp":
		contentType, ext = "image/png", "png"
		err = png.Encode(&buf, img)
	case format == "gif":
		contentType = "image/gif"
		err = gif.Encode(&buf, img, nil)
	case format == "bmp":
		contentType = "image/bmp"
		err = bmp.Encode(&buf, img)
	default:
		return crawler.EncodedImage{}, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return crawler.EncodedImage{}, fmt.Errorf("encode %s: %w", format, err)
	}
	return crawler.EncodedImage{Data: buf.Bytes(), ContentType: contentType, Extension: ext}, nil
}
