package http

import (
	"errors"
	"net/http"

	"stockhistory/internal/core"
	"stockhistory/internal/export"
	applog "stockhistory/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only when the persisted pair exists and loads.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	exists, err := s.store.Exists()
	if err == nil && !exists {
		ServiceUnavailableError("no snapshot files yet").Write(w)
		return
	}
	if err == nil {
		_, err = s.loadPair()
	}
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Snapshot files not ready", applog.FieldError, err.Error())
		ServiceUnavailableError("snapshot files cannot be loaded").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func handleHorizons(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(horizonsBody{Horizons: core.Horizons, Default: core.DefaultHorizon}).Write(w)
}

func (s *Server) handleAssortments(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairOrFail(w, r)
	if !ok {
		return
	}
	body := assortmentsBody{
		Catalogue:        core.KnownAssortments,
		DefaultSelection: codeStrings(core.DefaultSelection),
		Present:          codeStrings(pair.value.Columns),
	}
	if last, ok := pair.value.LastDate(); ok {
		body.LastDate = last.String()
	}
	NewJSONResponse().Data(body).Write(w)
}

// handleStock returns both tables filtered by the request.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	q, ok := parseOrFail(w, r)
	if !ok {
		return
	}
	pair, ok := s.pairOrFail(w, r)
	if !ok {
		return
	}

	value, ok := applyOrFail(w, q, pair.value)
	if !ok {
		return
	}
	quantity, ok := applyOrFail(w, q, pair.quantity)
	if !ok {
		return
	}
	NewJSONResponse().
		Header("Cache-Control", "no-cache").
		Data(stockBody{
			Value:    newTableBody(KindValue, value, q.Horizon),
			Quantity: newTableBody(KindQuantity, quantity, q.Horizon),
		}).
		Write(w)
}

// handleStockKind returns the value or the quantity table.
func (s *Server) handleStockKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(r.PathValue("kind"))
	if !ok {
		NotFoundError("unknown table " + r.PathValue("kind") + ", want value or quantity").Write(w)
		return
	}
	q, ok := parseOrFail(w, r)
	if !ok {
		return
	}
	pair, ok := s.pairOrFail(w, r)
	if !ok {
		return
	}
	t, ok := applyOrFail(w, q, pair.table(kind))
	if !ok {
		return
	}
	NewJSONResponse().
		Header("Cache-Control", "no-cache").
		Data(newTableBody(kind, t, q.Horizon)).
		Write(w)
}

// handleExport streams both filtered tables as an Excel workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, ok := parseOrFail(w, r)
	if !ok {
		return
	}
	pair, ok := s.pairOrFail(w, r)
	if !ok {
		return
	}
	value, ok := applyOrFail(w, q, pair.value)
	if !ok {
		return
	}
	quantity, ok := applyOrFail(w, q, pair.quantity)
	if !ok {
		return
	}

	f, err := export.Workbook(value, quantity)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to build workbook", applog.FieldError, err.Error())
		InternalServerError("failed to build workbook").Write(w)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="stock_history.xlsx"`)
	if _, err := f.WriteTo(w); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to write workbook", applog.FieldError, err.Error())
	}
}

func parseOrFail(w http.ResponseWriter, r *http.Request) (StockQuery, bool) {
	q, err := ParseStockQuery(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return StockQuery{}, false
	}
	return q, true
}

func (s *Server) pairOrFail(w http.ResponseWriter, r *http.Request) (snapshotPair, bool) {
	pair, err := s.loadPair()
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load snapshots",
			applog.FieldOperation, applog.OpRead,
			applog.FieldError, err.Error())
		InternalServerError("failed to load snapshot files").Write(w)
		return snapshotPair{}, false
	}
	return pair, true
}

func applyOrFail(w http.ResponseWriter, q StockQuery, t core.Table) (core.Table, bool) {
	out, err := q.Apply(t)
	if err != nil {
		if errors.Is(err, core.ErrUnknownAssortment) {
			BadRequestError(err.Error()).Write(w)
		} else {
			InternalServerError(err.Error()).Write(w)
		}
		return core.Table{}, false
	}
	return out, true
}
