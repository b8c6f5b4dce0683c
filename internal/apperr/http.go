package apperr

import "net/http"

// HTTPStatus maps a kind to the status returned by the HTTP layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth, KindConnection, KindEmbedding:
		return http.StatusBadGateway
	case KindFetch, KindRender:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error code for kind, e.g. "VALIDATION_ERROR".
func Code(kind Kind) string {
	switch kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAuth:
		return "UPSTREAM_AUTH_ERROR"
	case KindConnection:
		return "UPSTREAM_UNAVAILABLE"
	case KindEmbedding:
		return "EMBEDDING_ERROR"
	case KindFetch:
		return "FETCH_ERROR"
	case KindRender:
		return "RENDER_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// PublicMessage is the message safe to return to a client. Internal
// failures are reduced to a generic text.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindStorage, KindUnknown:
		return "Internal Server Error"
	default:
		return err.Error()
	}
}
