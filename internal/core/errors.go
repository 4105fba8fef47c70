package core

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation             ErrorKind = "validation_error"
	KindMissingCredential      ErrorKind = "missing_credential"
	KindDownloadFailed         ErrorKind = "download_failed"
	KindUnexpectedHTMLResponse ErrorKind = "unexpected_html_response"
	KindInvalidContent         ErrorKind = "invalid_content"
	KindServerMisconfiguration ErrorKind = "server_misconfiguration"
	KindDispatchTimeout        ErrorKind = "dispatch_timeout"
	KindDeviceRejected         ErrorKind = "device_rejected"
	KindDispatchNetworkError   ErrorKind = "dispatch_network_error"
)

var (
	ErrNoPrinters   = errors.New("no printer configured")
	ErrEmptyAddress = errors.New("printer address is empty")

	ErrValidation             = &DispatchError{Kind: KindValidation}
	ErrMissingCredential      = &DispatchError{Kind: KindMissingCredential}
	ErrDownloadFailed         = &DispatchError{Kind: KindDownloadFailed}
	ErrUnexpectedHTMLResponse = &DispatchError{Kind: KindUnexpectedHTMLResponse}
	ErrInvalidContent         = &DispatchError{Kind: KindInvalidContent}
	ErrServerMisconfiguration = &DispatchError{Kind: KindServerMisconfiguration}
	ErrDispatchTimeout        = &DispatchError{Kind: KindDispatchTimeout}
	ErrDeviceRejected         = &DispatchError{Kind: KindDeviceRejected}
	ErrDispatchNetworkError   = &DispatchError{Kind: KindDispatchNetworkError}
)

// DispatchError is the failure side of a dispatch. RemoteStatus is set
// when the failure came from an HTTP status returned by the content
// source or the printer.
type DispatchError struct {
	Kind         ErrorKind
	Message      string
	RemoteStatus int
	Err          error
}

func (e *DispatchError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is matches any DispatchError of the same kind, so callers can write
// errors.Is(err, core.ErrDispatchTimeout).
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*DispatchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, err error, format string, args ...any) *DispatchError {
	return &DispatchError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf extracts the kind of err. Errors that are not DispatchErrors
// report as network errors.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindDispatchNetworkError
}
