package storage

import (
	"encoding/json"
	"fmt"

	"github.com/reifenwerk/ledger/internal/ledger"
)

// lineRecord is the persisted shape of a statement line; amounts are cents.
type lineRecord struct {
	Group  string             `json:"group"`
	Label  string             `json:"label"`
	Type   ledger.AccountType `json:"type"`
	Amount int64              `json:"amount_minor"`
}

// EncodeLines serialises statement lines for the SQL backends.
func EncodeLines(lines []ledger.StatementLine) ([]byte, error) {
	recs := make([]lineRecord, 0, len(lines))
	for _, l := range lines {
		recs = append(recs, lineRecord{Group: l.Group, Label: l.Label, Type: l.Type, Amount: ledger.MinorUnits(l.Amount)})
	}
	return json.Marshal(recs)
}

// DecodeLines is the inverse of EncodeLines.
func DecodeLines(curr string, data []byte) ([]ledger.StatementLine, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var recs []lineRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode statement lines: %w", err)
	}
	out := make([]ledger.StatementLine, 0, len(recs))
	for _, r := range recs {
		amt, err := ledger.FromMinor(curr, r.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.StatementLine{Group: r.Group, Label: r.Label, Type: r.Type, Amount: amt})
	}
	return out, nil
}
