package loaders

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/math"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// boxFilter averages every source pixel under the destination pixel.
var boxFilter = &draw.Kernel{
	Support: 0.5,
	At:      func(t float64) float64 { return 1 },
}

type TextureLoader struct{}

func (tl *TextureLoader) Params(params interface{}) (interface{}, error) {
	var opts resources.TextureOptions
	switch p := params.(type) {
	case nil:
	case resources.TextureOptions:
		opts = p
	case *resources.TextureOptions:
		if p != nil {
			opts = *p
		}
	default:
		return nil, fmt.Errorf("texture options must be resources.TextureOptions, got %T", params)
	}
	if opts.Quality < resources.QualityHigh || opts.Quality > resources.QualityLow {
		return nil, fmt.Errorf("invalid texture quality %d", opts.Quality)
	}
	return opts, nil
}

func (tl *TextureLoader) Load(req *Request) (resources.Payload, error) {
	opts := req.Params.(resources.TextureOptions)

	// Open and decode the texture image file
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, format, err := decodeImage(bufio.NewReader(file), req.Ext)
	if err != nil {
		return nil, err
	}

	channels := sourceChannels(src)
	if opts.NeedsAlpha {
		channels = 4
	} else if channels < 3 {
		channels += 2
	}

	img := toNRGBA(src)
	b := img.Bounds()
	if d := opts.Quality.Divisor(); d > 1 {
		w := math.ScaleDown(b.Dx(), d)
		h := math.ScaleDown(b.Dy(), d)
		if scaled, err := resize(img, w, h); err != nil {
			core.LogWarn("Failed to downscale %s, keeping %dx%d: %s", req.URI, b.Dx(), b.Dy(), err)
		} else {
			img = scaled
		}
	}

	core.LogDebug("Decoded %s texture %s (%dx%d, %d channels)", format, req.URI, img.Bounds().Dx(), img.Bounds().Dy(), channels)

	return &resources.Texture{
		Options:  opts,
		Image:    img,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Channels: channels,
	}, nil
}

func (tl *TextureLoader) Unload(p resources.Payload, deps Dependencies) {
	if t, ok := p.(*resources.Texture); ok {
		t.Image = nil
	}
}

// Matches requires the same quality. A request for alpha is only served by a
// 4 channel entry; while the entry is still decoding its options decide.
func (tl *TextureLoader) Matches(stored, requested interface{}, p resources.Payload) bool {
	s := stored.(resources.TextureOptions)
	r := requested.(resources.TextureOptions)
	if s.Quality != r.Quality {
		return false
	}
	if !r.NeedsAlpha {
		return true
	}
	if t, ok := p.(*resources.Texture); ok && t != nil {
		return t.Channels == 4
	}
	return s.NeedsAlpha
}

// decodeImage picks the codec from the extension. A bare path is sniffed by
// magic bytes; TGA has none, so it is the fallback.
func decodeImage(r *bufio.Reader, ext string) (image.Image, string, error) {
	format := ext
	if len(format) > 0 {
		format = format[1:]
	} else {
		magic, _ := r.Peek(8)
		switch {
		case bytes.HasPrefix(magic, []byte("\x89PNG\r\n\x1a\n")):
			format = "png"
		case bytes.HasPrefix(magic, []byte{0xff, 0xd8}):
			format = "jpg"
		case bytes.HasPrefix(magic, []byte("BM")):
			format = "bmp"
		default:
			format = "tga"
		}
	}

	var decode func(io.Reader) (image.Image, error)
	switch format {
	case "png":
		decode = png.Decode
	case "jpg", "jpeg":
		decode = jpeg.Decode
	case "bmp":
		decode = bmp.Decode
	case "tga":
		decode = tga.Decode
	default:
		return nil, "", fmt.Errorf("unsupported image format %q", format)
	}
	img, err := decode(r)
	return img, format, err
}

func sourceChannels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func resize(src *image.NRGBA, w, h int) (dst *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			dst, err = nil, fmt.Errorf("resize panicked: %v", r)
		}
	}()
	dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	boxFilter.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}
