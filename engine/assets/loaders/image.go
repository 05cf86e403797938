package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string) (*metadata.TextureData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, openError(core.ResourceKindTexture, path, err)
	}
	defer file.Close()

	pixels, err := DecodeImage(file)
	if err != nil {
		return nil, decodeError(core.ResourceKindTexture, path, err)
	}
	return &metadata.TextureData{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Pixels: pixels,
	}, nil
}

// DecodeImage decodes any registered format into tightly packed RGBA8.
func DecodeImage(r io.Reader) (*image.RGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba, nil
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}
