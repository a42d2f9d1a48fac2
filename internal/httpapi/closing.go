package httpapi

import "net/http"

func (s *Server) getClosing(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Closing.Status(r.Context(), yearOf(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toClosingResponse(c))
}

// initiateClosing starts the workflow; the caller must be a closing admin.
func (s *Server) initiateClosing(w http.ResponseWriter, r *http.Request) {
	fy, ok := fiscalYear(w, r)
	if !ok {
		return
	}
	c, err := s.svc.Closing.Initiate(r.Context(), yearOf(r), fy, userFrom(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toClosingResponse(c))
}

func (s *Server) completeDepreciation(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Closing.CompleteDepreciation(r.Context(), yearOf(r), userFrom(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toClosingResponse(c))
}

func (s *Server) completeReports(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Closing.CompleteReports(r.Context(), yearOf(r), userFrom(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toClosingResponse(c))
}

func (s *Server) lockYear(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Closing.LockYear(r.Context(), yearOf(r), userFrom(r))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toClosingResponse(c))
}
