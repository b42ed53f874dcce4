// Package placeholder provides the image served in place of a frame that
// was never uploaded or has been cleared.
package placeholder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
)

const (
	Width  = 640
	Height = 480
)

// Black encodes a solid black Width x Height JPEG.
func Black() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads the placeholder from path, or falls back to Black when path
// is empty.
func Load(path string) ([]byte, error) {
	if path == "" {
		return Black()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read placeholder: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("placeholder %s is empty", path)
	}
	return data, nil
}
