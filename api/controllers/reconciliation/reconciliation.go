package reconciliation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalreconciliation "github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// Queue is the operator surface of the reconciliation queue.
type Queue interface {
	ListOpen(ctx context.Context, source *enums.ReconciliationSource, params pagination.Params) (*internalreconciliation.Page, error)
	Resolve(ctx context.Context, id int64, actorID uuid.UUID, note string) (*models.ReconciliationItem, error)
}

type resolveRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

func ListOpen(svc Queue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var source *enums.ReconciliationSource
		if raw := strings.TrimSpace(r.URL.Query().Get("source")); raw != "" {
			parsed := enums.ReconciliationSource(raw)
			if !parsed.IsValid() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid source").WithDetails(map[string]any{"field": "source"}))
				return
			}
			source = &parsed
		}
		page, err := svc.ListOpen(ctx, source, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Resolve closes an item once an operator has fixed the underlying data.
func Resolve(svc Queue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		itemID, err := validators.ParseURLID(r, "itemId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req resolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		item, err := svc.Resolve(ctx, itemID, actorID, strings.TrimSpace(req.Note))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
