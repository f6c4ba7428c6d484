package derive

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var (
	_ Transformer = Fill{}
	_ Transformer = Resize{}
)

// Fill scales and crops an image to exactly Width×Height,
// keeping the center.
type Fill struct {
	Width, Height int
}

func (f Fill) String() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Transform implements Transformer.
func (f Fill) Transform(ctx context.Context, b []byte) ([]byte, error) {
	if f.Width < 1 || f.Height < 1 {
		return nil, fmt.Errorf("bad fill dimensions %s", f)
	}
	return transform(ctx, b, func(img image.Image) image.Image {
		return imaging.Fill(img, f.Width, f.Height, imaging.Center, imaging.Lanczos)
	})
}

// Resize scales an image to Width×Height.
// If either is 0, it is computed to preserve the aspect ratio.
type Resize struct {
	Width, Height int
}

func (r Resize) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Transform implements Transformer.
func (r Resize) Transform(ctx context.Context, b []byte) ([]byte, error) {
	if r.Width < 0 || r.Height < 0 || (r.Width == 0 && r.Height == 0) {
		return nil, fmt.Errorf("bad resize dimensions %s", r)
	}
	return transform(ctx, b, func(img image.Image) image.Image {
		return imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
	})
}

func transform(ctx context.Context, b []byte, f func(image.Image) image.Image) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := f(img)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, out, imaging.JPEG); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}
