package qr

import (
	"bytes"
	"image"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/qrvid/corpus/internal/platform/corerr"
)

// Decode recovers the original chunk text from a rendered QR bitmap. It is
// the inverse of Rasterize and is used by the retriever (C5) after a frame
// has been extracted from the MP4.
func Decode(pngBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return "", corerr.IO("qr", "decode frame image", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", corerr.EncoderFailed("qr", "build binary bitmap", err)
	}

	reader := qrcode.NewQRCodeReader()
	result, err := reader.Decode(bmp, nil)
	if err != nil {
		return "", corerr.EncoderFailed("qr", "qr decode failed", err)
	}
	return result.GetText(), nil
}
