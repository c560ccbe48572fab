// Package imaging shrinks uploaded images until they fit a byte budget.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

// Defaults for Options fields left at zero.
const (
	DefaultBudget       = 500 * 1024
	DefaultStartQuality = 80
	DefaultMinQuality   = 10
	QualityStep         = 10
	DefaultStartLevel   = 6
	MaxLevel            = 9
	DefaultScaleStep    = 0.9
	DefaultMinScale     = 0.1
	// DefaultMaxPixels caps the declared width*height an image may have
	// before it is decoded.
	DefaultMaxPixels = 40_000_000
)

// Options tunes Shrink.
type Options struct {
	// Budget is the target size in bytes.
	Budget       int
	StartQuality int
	MinQuality   int
	StartLevel   int
	ScaleStep    float64
	MinScale     float64
	// MaxPixels bounds the images Shrink decodes. Larger images are kept
	// as uploaded.
	MaxPixels int
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.StartQuality <= 0 {
		o.StartQuality = DefaultStartQuality
	}
	if o.MinQuality <= 0 {
		o.MinQuality = DefaultMinQuality
	}
	if o.StartLevel <= 0 {
		o.StartLevel = DefaultStartLevel
	}
	if o.ScaleStep <= 0 || o.ScaleStep >= 1 {
		o.ScaleStep = DefaultScaleStep
	}
	if o.MinScale <= 0 {
		o.MinScale = DefaultMinScale
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// Result describes what Shrink produced.
type Result struct {
	Data []byte
	// Format is the decoded image format, "" when the data was not decoded.
	Format string
	// Quality is the final JPEG quality, Level the final PNG level.
	Quality int
	Level   int
	// Scale is the final downscale factor, 1 when the image kept its size.
	Scale float64
	// Compressed is set when Data is a re-encoded image within the budget.
	Compressed bool
	// Original is set when shrinking was attempted but the original bytes
	// were kept.
	Original bool
}

// Shrink re-encodes a JPEG or PNG image so it fits opts.Budget. JPEG
// quality is lowered in steps of 10 down to MinQuality, PNG compression is
// raised one level at a time up to 9, and then the image is downscaled by
// ScaleStep until it fits or the scale drops below MinScale. Images are
// never enlarged. When nothing fits, the data is not a JPEG or PNG, or the
// image declares more than MaxPixels, the original bytes are returned.
func Shrink(data []byte, opts Options) Result {
	opts = opts.withDefaults()
	if len(data) <= opts.Budget {
		return Result{Data: data, Scale: 1}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || (format != "jpeg" && format != "png") {
		return Result{Data: data, Format: format, Scale: 1, Original: true}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return Result{Data: data, Format: format, Scale: 1, Original: true}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil || (format != "jpeg" && format != "png") {
		return Result{Data: data, Format: format, Scale: 1, Original: true}
	}

	switch format {
	case "jpeg":
		return shrinkJPEG(data, img, opts)
	default:
		return shrinkPNG(data, img, opts)
	}
}

func shrinkJPEG(original []byte, img image.Image, opts Options) Result {
	quality := opts.StartQuality
	for ; quality >= opts.MinQuality; quality -= QualityStep {
		out, err := encodeJPEG(img, quality)
		if err == nil && len(out) <= opts.Budget {
			return Result{Data: out, Format: "jpeg", Quality: quality, Scale: 1, Compressed: true}
		}
	}
	quality = opts.MinQuality

	res, ok := downscale(img, opts, func(m image.Image) ([]byte, error) {
		return encodeJPEG(m, quality)
	})
	if !ok {
		return Result{Data: original, Format: "jpeg", Quality: quality, Scale: res.Scale, Original: true}
	}
	res.Format = "jpeg"
	res.Quality = quality
	return res
}

func shrinkPNG(original []byte, img image.Image, opts Options) Result {
	level := opts.StartLevel
	var last png.CompressionLevel = 1
	for ; level <= MaxLevel; level++ {
		cl := pngLevel(level)
		if cl == last {
			continue
		}
		last = cl
		out, err := encodePNG(img, cl)
		if err == nil && len(out) <= opts.Budget {
			return Result{Data: out, Format: "png", Level: level, Scale: 1, Compressed: true}
		}
	}
	level = MaxLevel

	res, ok := downscale(img, opts, func(m image.Image) ([]byte, error) {
		return encodePNG(m, pngLevel(level))
	})
	if !ok {
		return Result{Data: original, Format: "png", Level: level, Scale: res.Scale, Original: true}
	}
	res.Format = "png"
	res.Level = level
	return res
}

// downscale shrinks img by opts.ScaleStep per round until encode fits the
// budget. It reports false once the scale falls below opts.MinScale.
func downscale(img image.Image, opts Options, encode func(image.Image) ([]byte, error)) (Result, bool) {
	bounds := img.Bounds()
	width := float64(bounds.Dx())

	scale := opts.ScaleStep
	for scale >= opts.MinScale {
		w := uint(width * scale)
		if w < 1 {
			break
		}
		scaled := resize.Resize(w, 0, img, resize.Lanczos3)
		out, err := encode(scaled)
		if err == nil && len(out) <= opts.Budget {
			return Result{Data: out, Scale: scale, Compressed: true}, true
		}
		scale *= opts.ScaleStep
	}
	return Result{Scale: scale}, false
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image, level png.CompressionLevel) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngLevel maps a 0-9 zlib style level onto the encoder presets.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
