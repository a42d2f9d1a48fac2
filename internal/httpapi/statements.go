package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// fiscalYear reads the optional {"fiscal_year": ...} body. An empty body is
// fine.
func fiscalYear(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.ContentLength == 0 {
		return "", true
	}
	var req generateRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", true
		}
		badRequest(w, "invalid JSON: "+err.Error())
		return "", false
	}
	return strings.TrimSpace(req.FiscalYear), true
}

func (s *Server) getBalanceSheet(w http.ResponseWriter, r *http.Request) {
	bs, err := s.svc.Statements.BalanceSheet(r.Context(), yearOf(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toBalanceSheetResponse(bs))
}

func (s *Server) generateBalanceSheet(w http.ResponseWriter, r *http.Request) {
	fy, ok := fiscalYear(w, r)
	if !ok {
		return
	}
	bs, err := s.svc.Statements.GenerateBalanceSheet(r.Context(), yearOf(r), fy)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toBalanceSheetResponse(bs))
}

func (s *Server) getIncomeStatement(w http.ResponseWriter, r *http.Request) {
	is, err := s.svc.Statements.IncomeStatement(r.Context(), yearOf(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toIncomeStatementResponse(is))
}

func (s *Server) generateIncomeStatement(w http.ResponseWriter, r *http.Request) {
	fy, ok := fiscalYear(w, r)
	if !ok {
		return
	}
	is, err := s.svc.Statements.GenerateIncomeStatement(r.Context(), yearOf(r), fy)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toIncomeStatementResponse(is))
}
