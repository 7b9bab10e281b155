package references

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrefs "github.com/oportunidade/payhook/internal/references"
	"github.com/oportunidade/payhook/pkg/db/models"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
)

type stubRefs struct {
	input internalrefs.CreateInput
	err   error
	limit int
}

func (s *stubRefs) Create(_ context.Context, input internalrefs.CreateInput) (*models.Reference, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Reference{ReferenceNumber: input.ReferenceNumber, IsActive: true}, nil
}

func (s *stubRefs) List(_ context.Context, limit int) ([]models.Reference, error) {
	s.limit = limit
	return []models.Reference{{ReferenceNumber: "987"}}, nil
}

func TestCreateReference(t *testing.T) {
	svc := &stubRefs{}
	body := `{"reference_number":"987","entity":"11333","currency":"AOA","min_amount":"100.00"}`
	w := httptest.NewRecorder()
	CreateReference(svc, logger.Nop()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/references", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "987", svc.input.ReferenceNumber)
	require.NotNil(t, svc.input.MinAmount)
	assert.Equal(t, "100", svc.input.MinAmount.String())
}

func TestCreateReferenceRejectsUnknownFieldsAndMissingNumber(t *testing.T) {
	svc := &stubRefs{}
	for _, body := range []string{`{"reference_number":"987","colour":"red"}`, `{"entity":"11333"}`} {
		w := httptest.NewRecorder()
		CreateReference(svc, logger.Nop()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/references", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCreateReferenceDuplicate(t *testing.T) {
	svc := &stubRefs{err: pkgerrors.New(pkgerrors.CodeConflict, "reference number already registered")}
	w := httptest.NewRecorder()
	CreateReference(svc, logger.Nop()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/references", strings.NewReader(`{"reference_number":"987"}`)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListReferences(t *testing.T) {
	svc := &stubRefs{}
	w := httptest.NewRecorder()
	ListReferences(svc, logger.Nop()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/references?limit=3", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, svc.limit)
	var body struct {
		Data struct {
			Items []models.Reference `json:"items"`
			Count int                `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.Count)
}
