package dictionary

// ChartEntry is one account of the default chart.
type ChartEntry struct {
	Number string
	Name   string
}

// DefaultChart is the SKR-style chart a fresh ledger is seeded with. It covers
// the postings a tire-service marketplace produces: workshop equipment and its
// depreciation, bank and receivables, VAT, commissions and payouts.
var DefaultChart = []ChartEntry{
	{"0299", "Kumulierte Abschreibungen Sachanlagen"},
	{"0320", "Pkw"},
	{"0420", "Technische Anlagen (Montier- und Wuchtmaschinen)"},
	{"0440", "Hebebühnen"},
	{"0650", "Büroeinrichtung"},
	{"1000", "Kasse"},
	{"1200", "Bank"},
	{"1360", "Geldtransit Zahlungsdienstleister"},
	{"1400", "Forderungen aus Lieferungen und Leistungen"},
	{"1576", "Abziehbare Vorsteuer 19 %"},
	{"1600", "Forderungen gegen Werkstätten"},
	{"2000", "Eigenkapital"},
	{"2970", "Gewinnvortrag"},
	{"3000", "Rückstellungen"},
	{"3300", "Verbindlichkeiten aus Lieferungen und Leistungen"},
	{"3500", "Sonstige Verbindlichkeiten"},
	{"3700", "Verbindlichkeiten gegenüber Werkstätten (Auszahlungen)"},
	{"3806", "Umsatzsteuer 19 %"},
	{"4120", "Gehälter"},
	{"4210", "Miete"},
	{"4360", "Versicherungen"},
	{"4400", "Sonstige betriebliche Aufwendungen"},
	{"4530", "Laufende Kfz-Betriebskosten"},
	{"4600", "Werbekosten"},
	{"4830", "Abschreibungen auf Sachanlagen"},
	{"4970", "Nebenkosten des Geldverkehrs"},
	{"6300", "Wareneinkauf Reifen"},
	{"8200", "Provisionserlöse Werkstattvermittlung"},
	{"8400", "Erlöse 19 % USt"},
	{"8700", "Sonstige Erlöse"},
	{"9000", "Saldenvorträge"},
}
