package metadata

import "image"

/**
 * @brief Decoded texture pixels ready for upload.
 */
type TextureData struct {
	Name   string
	Pixels *image.RGBA
}

func (t *TextureData) Width() uint32 {
	return uint32(t.Pixels.Bounds().Dx())
}

func (t *TextureData) Height() uint32 {
	return uint32(t.Pixels.Bounds().Dy())
}
