package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
)

// createTestImage creates a gradient so resized output is not uniform.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8(255 * x / width)
			g := uint8(255 * y / height)
			img.Set(x, y, color.RGBA{R: r, G: g, B: 128, A: 255})
		}
	}

	return img
}

func createTestJPEG(width, height int) io.Reader {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, createTestImage(width, height), &jpeg.Options{Quality: 85})
	return bytes.NewReader(buf.Bytes())
}

func createTestPNG(width, height int) io.Reader {
	var buf bytes.Buffer
	_ = png.Encode(&buf, createTestImage(width, height))
	return bytes.NewReader(buf.Bytes())
}

func createInvalidImage() io.Reader {
	return bytes.NewReader([]byte("this is not an image"))
}

func decodeDimensions(t interface{ Fatalf(string, ...any) }, r io.Reader) (int, int, string) {
	img, format, err := image.Decode(r)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), format
}
