// Package qr implements C2: rendering a chunk's text into a square QR
// bitmap, and the decode half of C5's frame recovery.
package qr

import (
	"bytes"
	stddraw "image/draw"
	"image/png"
	"image/color"
	"image"
	"strings"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"

	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/corerr"
)

// Rasterizer holds the subset of the pipeline config it needs.
type Rasterizer struct {
	ecl          config.ECL
	width        int
	height       int
	moduleMargin int
}

func NewRasterizer(cfg config.Config) *Rasterizer {
	return &Rasterizer{
		ecl:          cfg.ECL,
		width:        cfg.VideoWidth,
		height:       cfg.VideoHeight,
		moduleMargin: cfg.ModuleMargin,
	}
}

// Rasterize renders chunkText as a PNG-encoded square bitmap: black
// modules on a white background, centred and padded to the configured
// pixel dimensions. Fails with corerr.KindPayloadTooLarge if chunkText
// cannot be encoded in a single QR symbol at the configured ECL.
func (r *Rasterizer) Rasterize(chunkText string) ([]byte, error) {
	level, err := eclToRecoveryLevel(r.ecl)
	if err != nil {
		return nil, err
	}

	code, err := qrcode.New(chunkText, level)
	if err != nil {
		if looksLikeCapacityError(err) {
			return nil, corerr.PayloadTooLarge("qr", "chunk does not fit a single QR symbol at the configured error-correction level")
		}
		return nil, corerr.EncoderFailed("qr", "qr encode failed", err)
	}
	code.DisableBorder = true

	// Bitmap() gives the exact module grid (no quiet zone, since
	// DisableBorder is set), so the margin can be expressed in whole
	// modules rather than an arbitrary pixel guess.
	modules := len(code.Bitmap())
	if modules == 0 {
		modules = 1
	}
	totalModules := modules + 2*r.moduleMargin
	modulePx := minInt(r.width, r.height) / totalModules
	if modulePx <= 0 {
		modulePx = 1
	}
	innerW := modules * modulePx
	innerH := modules * modulePx

	raw := code.Image(maxInt(innerW, innerH))

	scaled := image.NewRGBA(image.Rect(0, 0, innerW, innerH))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), raw, raw.Bounds(), xdraw.Over, nil)

	canvas := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	stddraw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)

	offset := image.Pt((r.width-innerW)/2, (r.height-innerH)/2)
	dstRect := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(innerW, innerH))}
	stddraw.Draw(canvas, dstRect, scaled, image.Point{}, stddraw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, corerr.IO("qr", "png encode failed", err)
	}
	return buf.Bytes(), nil
}

func eclToRecoveryLevel(ecl config.ECL) (qrcode.RecoveryLevel, error) {
	switch ecl {
	case config.ECLLow:
		return qrcode.Low, nil
	case config.ECLMedium, "":
		return qrcode.Medium, nil
	case config.ECLQuartile:
		return qrcode.High, nil
	case config.ECLHigh:
		return qrcode.Highest, nil
	default:
		return 0, corerr.Config("qr", "unknown error-correction level: "+string(ecl))
	}
}

func looksLikeCapacityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too long") || strings.Contains(msg, "too much data") || strings.Contains(msg, "capacity")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
