package goose

import (
	"errors"
	"fmt"

	"github.com/slonegd/gogoose/goose/dataset"
)

// Error classes. Every error returned by this package and by the engine wraps
// exactly one of them.
var (
	// ErrFormat: malformed or out-of-order TLV, truncated buffer.
	ErrFormat = errors.New("goose: format error")
	// ErrRange: a value exceeds the width budget of its field.
	ErrRange = errors.New("goose: range error")
	// ErrConfig: unknown signal key, unresolved control block.
	ErrConfig = errors.New("goose: configuration error")
	// ErrProtocolState: a task operation that is illegal in its current state.
	ErrProtocolState = errors.New("goose: protocol state error")
)

var (
	ErrUnknownKey          = fmt.Errorf("%w: unknown signal key", ErrConfig)
	ErrMissingControlBlock = fmt.Errorf("%w: missing control block", ErrConfig)
	ErrNotGoose            = fmt.Errorf("%w: not a GOOSE frame", ErrFormat)
)

// HeaderErrorCode identifies the header field at which decoding stopped.
type HeaderErrorCode int

const (
	HeaderOK              HeaderErrorCode = 0
	CodeAPDU              HeaderErrorCode = -1
	CodeGoCBRef           HeaderErrorCode = -2
	CodeTimeAllowedToLive HeaderErrorCode = -3
	CodeDatSet            HeaderErrorCode = -4
	CodeUTC               HeaderErrorCode = -5
	CodeStNum             HeaderErrorCode = -6
	CodeSqNum             HeaderErrorCode = -7
	CodeTest              HeaderErrorCode = -8
	CodeConfRev           HeaderErrorCode = -9
	CodeNdsCom            HeaderErrorCode = -10
	CodeNumDatSetEntries  HeaderErrorCode = -11
	CodeAllData           HeaderErrorCode = -12
)

var headerFieldNames = map[HeaderErrorCode]string{
	HeaderOK:              "none",
	CodeAPDU:              "goosePdu",
	CodeGoCBRef:           "gocbRef",
	CodeTimeAllowedToLive: "timeAllowedToLive",
	CodeDatSet:            "datSet",
	CodeUTC:               "t",
	CodeStNum:             "stNum",
	CodeSqNum:             "sqNum",
	CodeTest:              "test",
	CodeConfRev:           "confRev",
	CodeNdsCom:            "ndsCom",
	CodeNumDatSetEntries:  "numDatSetEntries",
	CodeAllData:           "allData",
}

// Field returns the name of the failing field.
func (c HeaderErrorCode) Field() string {
	if name, ok := headerFieldNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// HeaderError is returned by DecodeHeader. No field at or after the failing
// one may be trusted.
type HeaderError struct {
	Code   HeaderErrorCode
	Offset int
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("goose: bad %s at offset %d: %v", e.Code.Field(), e.Offset, e.Err)
}

func (e *HeaderError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

// classifyValue attaches the error class to a failed value assignment. A
// value that does not fit its element is a caller error, not a bad frame.
func classifyValue(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dataset.ErrOutOfRange):
		return fmt.Errorf("%w: %w", ErrRange, err)
	case errors.Is(err, dataset.ErrTypeMismatch), errors.Is(err, dataset.ErrUnsupportedType):
		return fmt.Errorf("%w: %w", ErrConfig, err)
	default:
		return classify(err)
	}
}

// classify attaches the error class to a codec error.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFormat), errors.Is(err, ErrRange), errors.Is(err, ErrConfig):
		return err
	case errors.Is(err, dataset.ErrOutOfRange):
		return fmt.Errorf("%w: %w", ErrRange, err)
	default:
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
}
