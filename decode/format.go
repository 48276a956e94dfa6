package decode

import (
	"strings"

	zxinggo "github.com/ericlevine/zxinggo"
	"github.com/pkg/errors"
)

// AllFormats lists every format the decoder can be asked to look for, in the
// order they are tried when all are enabled.
var AllFormats = []zxinggo.Format{
	zxinggo.FormatQRCode,
	zxinggo.FormatPDF417,
	zxinggo.FormatDataMatrix,
	zxinggo.FormatAztec,
	zxinggo.FormatCode128,
	zxinggo.FormatCode39,
	zxinggo.FormatEAN13,
	zxinggo.FormatEAN8,
	zxinggo.FormatUPCA,
	zxinggo.FormatUPCE,
	zxinggo.FormatITF,
	zxinggo.FormatCodabar,
}

// DefaultFormats are the symbologies a phone scanner typically enables: QR
// plus the common retail and logistics 1D codes.
var DefaultFormats = []zxinggo.Format{
	zxinggo.FormatQRCode,
	zxinggo.FormatEAN13,
	zxinggo.FormatEAN8,
	zxinggo.FormatCode128,
}

// ParseFormat resolves a format name such as "QR_CODE", "qr-code" or
// "ean13". Matching ignores case, dashes and underscores.
func ParseFormat(name string) (zxinggo.Format, error) {
	want := normalizeFormatName(name)
	for _, f := range AllFormats {
		if normalizeFormatName(f.String()) == want {
			return f, nil
		}
	}
	switch want {
	case "QR":
		return zxinggo.FormatQRCode, nil
	case "PDF417":
		return zxinggo.FormatPDF417, nil
	}
	return 0, errors.Errorf("unknown barcode format %q", name)
}

// ParseFormats resolves a list of names, dropping duplicates.
func ParseFormats(names []string) ([]zxinggo.Format, error) {
	formats := make([]zxinggo.Format, 0, len(names))
	seen := map[zxinggo.Format]bool{}
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return formats, nil
}

func normalizeFormatName(name string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(name)))
}
