package httpapi

import (
	"net/http"

	"github.com/reifenwerk/ledger/internal/ledger"
)

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.svc.Depreciation.Assets(r.Context())
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) postAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Depreciation.RegisterAsset(r.Context(), validated[ledger.Asset](r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toAssetResponse(a))
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	a, err := s.svc.Depreciation.Asset(r.Context(), id)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAssetResponse(a))
}

func (s *Server) putAsset(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	in := validated[ledger.Asset](r)
	in.ID = id
	a, err := s.svc.Depreciation.UpdateAsset(r.Context(), in)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAssetResponse(a))
}

func (s *Server) disposeAsset(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	if !requireJSON(w, r) {
		return
	}
	var req disposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	on, err := parseDay("disposal_date", req.DisposalDate)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	a, err := s.svc.Depreciation.DisposeAsset(r.Context(), id, on)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAssetResponse(a))
}

func (s *Server) getDepreciation(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Depreciation.Schedule(r.Context(), yearOf(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	out := make([]depreciationResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, toDepreciationResponse(d))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) scheduleDepreciation(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Depreciation.ScheduleYear(r.Context(), yearOf(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]int{"created": res.Created, "skipped": res.Skipped, "exhausted": res.Exhausted})
}

func (s *Server) postDepreciation(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.PostDepreciations(r.Context(), yearOf(r), actor(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]int{"posted": res.Posted, "already_booked": res.Already})
}
