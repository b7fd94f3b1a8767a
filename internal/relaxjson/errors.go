package relaxjson

import (
	"errors"
	"fmt"
)

var (
	// ErrAnchorNotFound is returned when the raw text carries no recognizable
	// embedded-data marker.
	ErrAnchorNotFound = errors.New("embedded data anchor not found")

	// ErrMalformedData is returned when every recovery strategy failed to
	// produce valid JSON.
	ErrMalformedData = errors.New("malformed embedded data")

	errNotApplicable = errors.New("strategy not applicable")
)

// MalformedDataError reports an exhausted fallback chain together with the
// location of the debug artifact written before the last strategy ran.
type MalformedDataError struct {
	ArtifactLocation string
	Err              error
}

func (e *MalformedDataError) Error() string {
	msg := ErrMalformedData.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.ArtifactLocation != "" {
		msg = fmt.Sprintf("%s (debug data saved to %s)", msg, e.ArtifactLocation)
	}
	return msg
}

func (e *MalformedDataError) Unwrap() error {
	return e.Err
}

func (e *MalformedDataError) Is(target error) bool {
	return target == ErrMalformedData
}
