package references

import (
	"context"
	"net/http"

	"github.com/oportunidade/payhook/api/responses"
	"github.com/oportunidade/payhook/api/validators"
	internalrefs "github.com/oportunidade/payhook/internal/references"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/pagination"
)

type Service interface {
	Create(ctx context.Context, input internalrefs.CreateInput) (*models.Reference, error)
	List(ctx context.Context, limit int) ([]models.Reference, error)
}

func CreateReference(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input internalrefs.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ref, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "reference_number", ref.ReferenceNumber), "reference registered")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ref)
	}
}

func ListReferences(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		refs, err := svc.List(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteList(w, refs, len(refs), limit)
	}
}
