// Package zxscan implements the scan-session state machine of a barcode
// scanner: a view model holding the displayed result and scan mode, a live
// session reducing a camera's stream of detections to a single result, and a
// still-photo scan that decodes exactly one captured image.
package zxscan

// ResultKind identifies the outcome of a decode attempt.
type ResultKind int

const (
	NotScanned ResultKind = iota
	Decoded
	NoCodeFound
)

// String returns the name of the result kind.
func (k ResultKind) String() string {
	switch k {
	case NotScanned:
		return "NOT_SCANNED"
	case Decoded:
		return "DECODED"
	case NoCodeFound:
		return "NO_CODE_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Display text shown for results that carry no payload.
const (
	NotScannedText  = "Not Scanned Yet"
	NoCodeFoundText = "No Barcode Found"
)

// ScanResult is the immutable outcome of a scan. The zero value is NotScanned.
type ScanResult struct {
	kind    ResultKind
	payload string
}

// NotScannedResult returns the result held before any scan completes.
func NotScannedResult() ScanResult {
	return ScanResult{kind: NotScanned}
}

// DecodedResult returns a result carrying a decoded payload.
func DecodedResult(payload string) ScanResult {
	return ScanResult{kind: Decoded, payload: payload}
}

// NoCodeFoundResult returns the result of a decode that found nothing.
func NoCodeFoundResult() ScanResult {
	return ScanResult{kind: NoCodeFound}
}

// Kind returns the kind of the result.
func (r ScanResult) Kind() ResultKind { return r.kind }

// Payload returns the decoded payload and whether the result is Decoded.
func (r ScanResult) Payload() (string, bool) {
	if r.kind != Decoded {
		return "", false
	}
	return r.payload, true
}

// String returns the text a UI displays for the result.
func (r ScanResult) String() string {
	switch r.kind {
	case Decoded:
		return r.payload
	case NoCodeFound:
		return NoCodeFoundText
	default:
		return NotScannedText
	}
}
