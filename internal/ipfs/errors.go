package ipfs

import (
	"errors"
	"fmt"
)

// ErrUpload matches every *UploadError via errors.Is.
var ErrUpload = errors.New("ipfs upload failed")

// UploadError reports a failed add call: a transport error, a non-2xx status,
// or an unreadable response body.
type UploadError struct {
	Op         string // "request", "status", "decode"
	StatusCode int    // zero when no response was received
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	msg := "ipfs: upload failed: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }
