package zxscan

import (
	"context"

	"github.com/pkg/errors"
)

// PhotoScan drives a one-shot capture and feeds the single resulting image
// through a Decoder. There is no retry: a photo without a code is final.
type PhotoScan struct {
	capturer PhotoCapturer
	decoder  Decoder
}

// NewPhotoScan creates a PhotoScan. Either collaborator may be nil: a nil
// capturer makes Capture fail, a nil decoder finds no code in any image.
func NewPhotoScan(capturer PhotoCapturer, decoder Decoder) *PhotoScan {
	return &PhotoScan{capturer: capturer, decoder: decoder}
}

// Capture presents the capture flow and returns exactly one image, or
// ErrUserCancelled when the flow yields none.
func (p *PhotoScan) Capture(ctx context.Context) (ImageData, error) {
	if p.capturer == nil {
		return nil, errors.New("no photo capturer configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	image, err := p.capturer.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ErrUserCancelled
	}
	return image, nil
}

// Decode returns the payload of the code in image, if any. Data that is not
// an image yields no payload rather than an error.
func (p *PhotoScan) Decode(image ImageData) (string, bool) {
	if p.decoder == nil || len(image) == 0 {
		return "", false
	}
	return p.decoder.Decode(image)
}
