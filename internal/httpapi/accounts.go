// Account handlers: create, list, look up and balance.
package httpapi

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/ledger"
)

func toAccountResponse(a ledger.Account) accountResponse {
	g := dictionary.Group(a.Number)
	return accountResponse{Number: a.Number, Name: a.Name, Type: string(a.Type), Group: g.Code, Label: g.Label}
}

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	in := validated[postAccountRequest](r)
	acc, err := s.svc.Accounts.Create(r.Context(), in.Number, in.Name)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// listAccounts handles GET /accounts?type=.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	typ := ledger.AccountType(r.URL.Query().Get("type"))
	accs, err := s.svc.Accounts.List(r.Context())
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		if typ != "" && a.Type != typ {
			continue
		}
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.svc.Accounts.Lookup(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

// getAccountBalance reports the balance on the account's normal side.
func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	asOf := validated[*time.Time](r)
	bal, err := s.svc.Journal.AccountBalance(r.Context(), number, asOf)
	if err != nil {
		s.serviceErr(w, r, err)
		return
	}
	units := ledger.MinorUnits(bal)
	toJSON(w, http.StatusOK, balanceResponse{Account: number, AsOf: dayString(asOf), AmountMinor: units, Amount: ledger.FormatMinor(units)})
}
