package extract

import (
	"context"
	"errors"
	"fmt"

	"ragdocs/internal/apperr"
)

// FetchError reports a page that could not be retrieved: network failure,
// timeout or a non-success status.
func FetchError(url string, err error) error {
	return apperr.New(apperr.KindFetch, fmt.Sprintf("fetch %s", url), err)
}

// RenderError reports a renderer crash or a page that could not be evaluated.
func RenderError(url string, err error) error {
	return apperr.New(apperr.KindRender, fmt.Sprintf("render %s", url), err)
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
