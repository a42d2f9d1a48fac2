package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reifenwerk/ledger/internal/ledger"
	"github.com/reifenwerk/ledger/internal/service/booking"
)

func parseDay(flag, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD, got %q", flag, s)
	}
	return t, nil
}

func newPostCommand(get func() *app, root *rootFlags) *cobra.Command {
	var (
		sourceType   string
		sourceID     string
		debit        string
		credit       string
		amount       string
		bookingDate  string
		documentDate string
		description  string
		nonBlocking  bool
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Book a business event (idempotent per source type and id)",
		Example: `  ledger post --source-type INVOICE --source-id RE-2024-0815 \
    --debit 1400 --credit 8400 --amount 119.00 --date 2024-03-01 --text "Reifenwechsel"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			st, err := ledger.ParseSourceType(sourceType)
			if err != nil {
				return err
			}
			amt, err := ledger.ParseAmount(a.cfg.Currency, amount)
			if err != nil {
				return err
			}
			day, err := parseDay("date", bookingDate)
			if err != nil {
				return err
			}
			ev := booking.Event{
				SourceType:    st,
				SourceID:      sourceID,
				DebitAccount:  debit,
				CreditAccount: credit,
				Amount:        amt,
				BookingDate:   day,
				Description:   description,
				CreatedBy:     root.user,
			}
			if documentDate != "" {
				doc, err := parseDay("document-date", documentDate)
				if err != nil {
					return err
				}
				ev.DocumentDate = &doc
			}

			post := a.svc.Booking.PostBusinessEvent
			if nonBlocking {
				post = a.svc.Booking.PostNonBlocking
			}
			out, err := post(cmd.Context(), ev)
			if err != nil {
				return err
			}
			switch {
			case out.Warning != "":
				printf(cmd, "Not booked: %s\n", out.Warning)
			case out.Existing:
				printf(cmd, "Already booked as entry %d (%s)\n", out.EntryNumber, out.EntryID)
			default:
				printf(cmd, "Booked entry %d (%s)\n", out.EntryNumber, out.EntryID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&sourceType, "source-type", string(ledger.SourceManual), "MANUAL, EXPENSE, INVOICE, PAYMENT, PAYOUT, COMMISSION")
	f.StringVar(&sourceID, "source-id", "", "id of the business event; empty books without idempotency")
	f.StringVar(&debit, "debit", "", "debit account number")
	f.StringVar(&credit, "credit", "", "credit account number")
	f.StringVar(&amount, "amount", "", "amount, e.g. 119.00")
	f.StringVar(&bookingDate, "date", time.Now().UTC().Format(time.DateOnly), "booking date")
	f.StringVar(&documentDate, "document-date", "", "document date")
	f.StringVar(&description, "text", "", "booking text")
	f.BoolVar(&nonBlocking, "non-blocking", false, "report a closed period as a warning instead of failing")
	_ = cmd.MarkFlagRequired("debit")
	_ = cmd.MarkFlagRequired("credit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newStornoCommand(get func() *app, root *rootFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "storno <entry-id>",
		Short: "Reverse an entry with a counter-booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id %q: %w", args[0], err)
			}
			e, err := get().svc.Journal.Storno(cmd.Context(), id, reason, root.user)
			if err != nil {
				return err
			}
			printf(cmd, "Storno entry %d (%s) booked on %s\n", e.EntryNumber, e.ID, e.BookingDate.Format(time.DateOnly))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the entry is reversed")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newEntriesCommand(get func() *app) *cobra.Command {
	var (
		account    string
		sourceType string
		from       string
		to         string
		ndjson     bool
	)
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List journal entries in entry-number order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f ledger.EntryFilter
			f.AccountNumber = account
			if sourceType != "" {
				st, err := ledger.ParseSourceType(sourceType)
				if err != nil {
					return err
				}
				f.SourceType = st
			}
			if from != "" || to != "" {
				rng := ledger.DateRange{To: time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)}
				var err error
				if from != "" {
					if rng.From, err = parseDay("from", from); err != nil {
						return err
					}
				}
				if to != "" {
					if rng.To, err = parseDay("to", to); err != nil {
						return err
					}
				}
				f.Range = &rng
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !ndjson {
				printf(cmd, "%6s  %-10s  %-6s  %-6s  %12s  %-12s  %s\n", "NR", "DATE", "DEBIT", "CREDIT", "AMOUNT", "SOURCE", "TEXT")
			}
			for e, err := range get().svc.Journal.Query(cmd.Context(), f) {
				if err != nil {
					return err
				}
				if ndjson {
					if err := enc.Encode(exportRow(e)); err != nil {
						return err
					}
					continue
				}
				text := e.Description
				if e.IsStorno {
					text = "[S] " + text
				}
				printf(cmd, "%6d  %-10s  %-6s  %-6s  %12s  %-12s  %s\n",
					e.EntryNumber, e.BookingDate.Format(time.DateOnly), e.DebitAccount, e.CreditAccount,
					ledger.FormatMinor(e.Minor()), e.SourceType, text)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&account, "account", "", "only entries touching this account")
	fl.StringVar(&sourceType, "source-type", "", "only entries of this source type")
	fl.StringVar(&from, "from", "", "first booking date")
	fl.StringVar(&to, "to", "", "last booking date")
	fl.BoolVar(&ndjson, "ndjson", false, "write one JSON object per line")
	return cmd
}

type exportEntry struct {
	ID            uuid.UUID `json:"id"`
	EntryNumber   int64     `json:"entry_number"`
	BookingDate   string    `json:"booking_date"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	AmountMinor   int64     `json:"amount_minor"`
	Description   string    `json:"description"`
	SourceType    string    `json:"source_type"`
	SourceID      string    `json:"source_id,omitempty"`
	IsStorno      bool      `json:"is_storno"`
	Locked        bool      `json:"locked"`
}

func exportRow(e ledger.Entry) exportEntry {
	return exportEntry{
		ID:            e.ID,
		EntryNumber:   e.EntryNumber,
		BookingDate:   e.BookingDate.Format(time.DateOnly),
		DebitAccount:  e.DebitAccount,
		CreditAccount: e.CreditAccount,
		AmountMinor:   e.Minor(),
		Description:   e.Description,
		SourceType:    string(e.SourceType),
		SourceID:      e.SourceID,
		IsStorno:      e.IsStorno,
		Locked:        e.Locked,
	}
}
