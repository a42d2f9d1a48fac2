package httpapi

import (
	"net/http"

	"github.com/reifenwerk/ledger/internal/dictionary"
	"github.com/reifenwerk/ledger/internal/ledger"
)

// GET /v1/dictionary/groups?type=
func (s *Server) getGroupsDictionary(w http.ResponseWriter, r *http.Request) {
	var t *ledger.AccountType
	if ts := r.URL.Query().Get("type"); ts != "" {
		tt := ledger.AccountType(ts)
		t = &tt
	}
	types := []ledger.AccountType{ledger.AccountTypeAsset, ledger.AccountTypeLiability, ledger.AccountTypeEquity, ledger.AccountTypeRevenue, ledger.AccountTypeExpense}
	type groupItem struct {
		Type   ledger.AccountType    `json:"type"`
		Groups []dictionary.GroupDef `json:"groups"`
	}
	out := struct {
		Items []groupItem `json:"items"`
	}{Items: []groupItem{}}
	for _, typ := range types {
		if t != nil && *t != typ {
			continue
		}
		out.Items = append(out.Items, groupItem{Type: typ, Groups: dictionary.GroupsFor(&typ)})
	}
	toJSON(w, http.StatusOK, out)
}
