package vector

import (
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"

	"ragdocs/internal/apperr"
)

func AuthError(msg string, err error) error {
	return apperr.New(apperr.KindAuth, msg, err)
}

func ConnectionError(msg string, err error) error {
	return apperr.New(apperr.KindConnection, msg, err)
}

func ValidationError(msg string, err error) error {
	return apperr.New(apperr.KindValidation, msg, err)
}

// Classify maps a Weaviate client error onto the index error kinds:
// credential rejection is AuthError, an unreachable or failing backend is
// ConnectionError and anything the server refused as a bad request is
// ValidationError.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		switch {
		case clientErr.StatusCode == http.StatusUnauthorized || clientErr.StatusCode == http.StatusForbidden:
			return AuthError(op+": credentials rejected", err)
		case clientErr.StatusCode >= 500:
			return ConnectionError(op+": backend error", err)
		case clientErr.IsUnexpectedStatusCode:
			return ValidationError(op+": request rejected", err)
		case clientErr.DerivedFromError != nil && isNetworkError(clientErr.DerivedFromError):
			return ConnectionError(op+": backend unreachable", err)
		}
	}
	if isNetworkError(err) {
		return ConnectionError(op+": backend unreachable", err)
	}
	return ValidationError(op, err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	return errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.As(err, &opErr)
}
