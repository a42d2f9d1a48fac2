// Package dictionary holds the SKR-style account groups used to aggregate
// statements and the default chart of accounts seeded on start.
package dictionary

import (
	"sort"

	"github.com/reifenwerk/ledger/internal/ledger"
)

type GroupDef struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

var groups = map[string]string{
	"00": "Immaterielle Vermögensgegenstände",
	"01": "Grundstücke und Bauten",
	"02": "Kumulierte Abschreibungen",
	"03": "Fahrzeuge",
	"04": "Technische Anlagen und Maschinen",
	"05": "Andere Anlagen",
	"06": "Betriebs- und Geschäftsausstattung",
	"07": "Anlagen im Bau",
	"08": "Finanzanlagen",
	"09": "Sonstiges Anlagevermögen",
	"10": "Kasse",
	"11": "Postbank und Zahlungsdienstleister",
	"12": "Bankguthaben",
	"13": "Wertpapiere",
	"14": "Forderungen aus Lieferungen und Leistungen",
	"15": "Sonstige Vermögensgegenstände und Vorsteuer",
	"16": "Forderungen gegen Werkstätten",
	"17": "Sonstige Forderungen",
	"18": "Privatkonten",
	"19": "Aktive Rechnungsabgrenzung",
	"20": "Gezeichnetes Kapital",
	"29": "Gewinnvortrag",
	"30": "Rückstellungen",
	"33": "Verbindlichkeiten aus Lieferungen und Leistungen",
	"35": "Sonstige Verbindlichkeiten",
	"37": "Verbindlichkeiten gegenüber Werkstätten",
	"38": "Steuerverbindlichkeiten",
	"39": "Passive Rechnungsabgrenzung",
	"41": "Personalaufwand",
	"42": "Raumkosten",
	"43": "Versicherungen und Beiträge",
	"44": "Sonstige betriebliche Aufwendungen",
	"45": "Fahrzeugkosten",
	"46": "Werbe- und Reisekosten",
	"48": "Abschreibungen",
	"49": "Verwaltungskosten",
	"54": "Wareneingang",
	"63": "Wareneinkauf Reifen",
	"69": "Zinsaufwand",
	"80": "Umsatzerlöse",
	"82": "Provisionserlöse",
	"84": "Erlöse 19 % USt",
	"87": "Sonstige Erlöse",
	"90": "Saldenvorträge",
}

// LabelFor returns the label of the group account number belongs to. Unknown
// groups get a generic label so statements never drop a balance.
func LabelFor(number string) string {
	code := ledger.GroupCode(number)
	if l, ok := groups[code]; ok {
		return l
	}
	return "Kontengruppe " + code
}

// Group returns the definition of the group account number belongs to.
func Group(number string) GroupDef {
	return GroupDef{Code: ledger.GroupCode(number), Label: LabelFor(number)}
}

// GroupsFor lists the known groups, optionally narrowed to one account type,
// sorted by code.
func GroupsFor(t *ledger.AccountType) []GroupDef {
	out := make([]GroupDef, 0, len(groups))
	for code, label := range groups {
		if t != nil {
			// a group's type is that of its leading digit
			gt, err := ledger.TypeForNumber(code + "00")
			if err != nil || gt != *t {
				continue
			}
		}
		out = append(out, GroupDef{Code: code, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
