package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTargetContext rejects a Start without a project to attribute
	// captures to.
	ErrNoTargetContext = errors.New("capture: no target context")
	// ErrInvalidPeriod rejects periods shorter than MinPeriod.
	ErrInvalidPeriod = errors.New("capture: invalid period")
	// ErrNotImage is wrapped in a ProviderError when captured bytes do not
	// sniff as an image.
	ErrNotImage = errors.New("capture: not an image")
	// ErrSendFailed is published when the transport refused a capture.
	ErrSendFailed = errors.New("capture: send failed")
)

// ProviderError is a failure to obtain an image. The tick is skipped and the
// schedule continues.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("capture provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
