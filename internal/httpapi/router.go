package httpapi

import chi "github.com/go-chi/chi/v5"

// routes declares the HTTP API endpoints and attaches per-route middleware.
func (s *Server) routes() {
	s.rt.Route("/v1", func(r chi.Router) {
		// Journal
		r.With(s.validatePostEvent()).Post("/entries", s.postEntry)
		r.With(s.validateListEntries()).Get("/entries", s.listEntries)
		r.With(s.validateExport()).Get("/entries/export", s.exportEntries)
		r.Get("/entries/{id}", s.getEntry)
		r.With(s.validateStorno()).Post("/entries/{id}/storno", s.stornoEntry)
		r.With(s.validateAsOf()).Get("/trial-balance", s.trialBalance)

		// Chart of accounts
		r.Get("/accounts", s.listAccounts)
		r.With(s.validatePostAccount()).Post("/accounts", s.postAccount)
		r.Get("/accounts/{number}", s.getAccount)
		r.With(s.validateAsOf()).Get("/accounts/{number}/balance", s.getAccountBalance)
		r.Get("/dictionary/groups", s.getGroupsDictionary)

		// Asset register and depreciation
		r.Get("/assets", s.listAssets)
		r.With(s.validateAsset()).Post("/assets", s.postAsset)
		r.Get("/assets/{id}", s.getAsset)
		r.With(s.validateAsset()).Put("/assets/{id}", s.putAsset)
		r.Post("/assets/{id}/dispose", s.disposeAsset)
		r.With(s.validateYear()).Get("/depreciation/{year}", s.getDepreciation)
		r.With(s.validateYear()).Post("/depreciation/{year}/schedule", s.scheduleDepreciation)
		r.With(s.validateYear()).Post("/depreciation/{year}/post", s.postDepreciation)

		// Statements
		r.With(s.validateYear()).Get("/statements/{year}/balance-sheet", s.getBalanceSheet)
		r.With(s.validateYear()).Post("/statements/{year}/balance-sheet", s.generateBalanceSheet)
		r.With(s.validateYear()).Get("/statements/{year}/income-statement", s.getIncomeStatement)
		r.With(s.validateYear()).Post("/statements/{year}/income-statement", s.generateIncomeStatement)

		// Year-end closing
		r.Route("/closing/{year}", func(r chi.Router) {
			r.Use(s.validateYear())
			r.Get("/", s.getClosing)
			r.Post("/initiate", s.initiateClosing)
			r.Post("/depreciation", s.completeDepreciation)
			r.Post("/reports", s.completeReports)
			r.Post("/lock", s.lockYear)
		})
	})

	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
