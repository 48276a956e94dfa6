// Package decode finds barcodes in still images using the zxinggo library.
package decode

import (
	"bytes"
	"crypto/sha256"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/erni27/imcache"
	zxinggo "github.com/ericlevine/zxinggo"
	"github.com/ericlevine/zxinggo/binarizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ericlevine/zxscan"

	// Register format readers.
	_ "github.com/ericlevine/zxinggo/aztec"
	_ "github.com/ericlevine/zxinggo/datamatrix"
	_ "github.com/ericlevine/zxinggo/oned"
	_ "github.com/ericlevine/zxinggo/pdf417"
	_ "github.com/ericlevine/zxinggo/qrcode"
)

// Options configures a Decoder.
type Options struct {
	// TryHarder spends more time looking for codes.
	TryHarder bool

	// PureBarcode hints that images contain only a clean code render.
	PureBarcode bool

	// AlsoInverted also looks for light-on-dark codes.
	AlsoInverted bool

	// Formats are tried in order; the first match wins. Empty means
	// DefaultFormats.
	Formats []zxinggo.Format

	// CacheTTL bounds how long a result is remembered per distinct image.
	// Zero keeps results for the life of the Decoder.
	CacheTTL time.Duration

	// MaxEntries caps the number of remembered results, evicting the least
	// recently used. Zero means no cap.
	MaxEntries int
}

// Detection is the outcome of decoding one image.
type Detection struct {
	Text   string
	Format zxinggo.Format
	Found  bool
}

type cacheKey [sha256.Size]byte

// Decoder implements zxscan.Decoder. Decoding is deterministic: binarizers
// and formats are always tried in the same order, so results are memoized by
// the image's SHA-256.
type Decoder struct {
	opts   Options
	cache  *imcache.Cache[cacheKey, Detection]
	logger zerolog.Logger
}

var _ zxscan.Decoder = (*Decoder)(nil)

// New creates a Decoder.
func New(opts Options, logger zerolog.Logger) *Decoder {
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	var cacheOpts []imcache.Option[cacheKey, Detection]
	if opts.CacheTTL > 0 {
		cacheOpts = append(cacheOpts, imcache.WithDefaultExpirationOption[cacheKey, Detection](opts.CacheTTL))
	}
	if opts.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, imcache.WithMaxEntriesOption[cacheKey, Detection](opts.MaxEntries))
	}
	return &Decoder{
		opts:   opts,
		cache:  imcache.New[cacheKey, Detection](cacheOpts...),
		logger: logger.With().Str("component", "decoder").Logger(),
	}
}

// Decode returns the payload of the first code found in data.
func (d *Decoder) Decode(data zxscan.ImageData) (string, bool) {
	det := d.Detect(data)
	return det.Text, det.Found
}

// Detect decodes data as an image and looks for a code in it. Data that
// cannot be read as PNG, JPEG or GIF yields a Detection with Found unset.
func (d *Decoder) Detect(data []byte) Detection {
	logger := d.logger.With().Str("method", "Detect").Logger()

	key := cacheKey(sha256.Sum256(data))
	if det, ok := d.cache.Get(key); ok {
		return det
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Debug().Err(err).Int("bytes", len(data)).Msg("not an image")
		d.cache.Set(key, Detection{}, imcache.WithDefaultExpiration())
		return Detection{}
	}

	det := d.DetectImage(img)
	logger.Debug().Str("encoding", format).Bool("found", det.Found).Msg("decoded image")
	d.cache.Set(key, det, imcache.WithDefaultExpiration())
	return det
}

// DetectImage looks for a code in img. The GlobalHistogram binarizer is tried
// first (fast, good for clean renders), then Hybrid (local thresholding,
// better for photographs with uneven lighting).
func (d *Decoder) DetectImage(img image.Image) Detection {
	if img.Bounds().Empty() {
		return Detection{}
	}

	source := zxinggo.NewImageLuminanceSource(img)
	bitmaps := []*zxinggo.BinaryBitmap{
		zxinggo.NewBinaryBitmap(binarizer.NewGlobalHistogram(source)),
		zxinggo.NewBinaryBitmap(binarizer.NewHybrid(source)),
	}

	// With AlsoInverted the library flips a bitmap's cached matrix in place
	// after a miss, so each format tries both polarities whichever one the
	// previous format left behind.
	for _, bitmap := range bitmaps {
		for _, format := range d.opts.Formats {
			opts := &zxinggo.DecodeOptions{
				TryHarder:       d.opts.TryHarder,
				PureBarcode:     d.opts.PureBarcode,
				AlsoInverted:    d.opts.AlsoInverted,
				PossibleFormats: []zxinggo.Format{format},
			}
			result, err := tryDecode(bitmap, opts)
			if err != nil {
				continue
			}
			return Detection{Text: result.Text, Format: result.Format, Found: true}
		}
	}
	return Detection{}
}

// tryDecode runs a single-format decode. Readers can panic on malformed
// bitmaps; that counts as a miss for the format.
func tryDecode(bitmap *zxinggo.BinaryBitmap, opts *zxinggo.DecodeOptions) (result *zxinggo.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, errors.Errorf("%s reader panicked: %v", opts.PossibleFormats[0], r)
		}
	}()
	result, err = zxinggo.Decode(bitmap, opts)
	return result, errors.Wrapf(err, "decode %s", opts.PossibleFormats[0])
}
