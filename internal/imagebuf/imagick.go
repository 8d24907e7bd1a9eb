//go:build imagick

package imagebuf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"gopkg.in/gographics/imagick.v3/imagick"
)

func init() {
	fallbackDecoders = append(fallbackDecoders, decodeWithImageMagick)
}

// decodeWithImageMagick converts anything ImageMagick can read into PNG and
// decodes that.
func decodeWithImageMagick(data []byte) (image.Image, error) {
	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(data); err != nil {
		return nil, fmt.Errorf("imagick read: %w", err)
	}
	if err := mw.SetImageFormat("PNG"); err != nil {
		return nil, fmt.Errorf("imagick format: %w", err)
	}
	blob, err := mw.GetImageBlob()
	if err != nil {
		return nil, fmt.Errorf("imagick blob: %w", err)
	}
	return png.Decode(bytes.NewReader(blob))
}
