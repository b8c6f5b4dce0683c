package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragdocs/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   apperr.Kind
		status int
		code   string
	}{
		{apperr.KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperr.KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{apperr.KindAuth, http.StatusBadGateway, "UPSTREAM_AUTH_ERROR"},
		{apperr.KindConnection, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{apperr.KindEmbedding, http.StatusBadGateway, "EMBEDDING_ERROR"},
		{apperr.KindFetch, http.StatusUnprocessableEntity, "FETCH_ERROR"},
		{apperr.KindRender, http.StatusUnprocessableEntity, "RENDER_ERROR"},
		{apperr.KindStorage, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{apperr.KindUnknown, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, apperr.HTTPStatus(tt.kind))
			assert.Equal(t, tt.code, apperr.Code(tt.kind))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	storage := fmt.Errorf("snapshot: %w", apperr.New(apperr.KindStorage, "snapshot", errors.New("disk full at /var/lib")))
	assert.Equal(t, "Internal Server Error", apperr.PublicMessage(storage))
	assert.Equal(t, "Internal Server Error", apperr.PublicMessage(errors.New("boom")))

	validation := apperr.New(apperr.KindValidation, "url is empty", nil)
	assert.Equal(t, "validation: url is empty", apperr.PublicMessage(validation))
}
