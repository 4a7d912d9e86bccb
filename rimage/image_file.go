package rimage

import (
	"image"
	"image/png"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// EncodePNG writes img to w as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return errors.Wrap(png.Encode(w, img), "error encoding png")
}

// WriteImageToFile writes img to fn as a PNG.
func WriteImageToFile(fn string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "error creating %q", fn)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return EncodePNG(f, img)
}

// ReadImageFromFile decodes a PNG file into an Image.
func ReadImageFromFile(fn string) (*Image, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %q", fn)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding %q", fn)
	}
	return NewImageFromStdImage(img), nil
}
