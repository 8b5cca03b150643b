package analytics

import (
	"context"
	"sort"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// PARTY STATEMENT - Ledger rows with running balance
// =============================================================================

// StatementRow is one ledger posting with the balance after it was applied.
type StatementRow struct {
	EntryID     string
	Date        generic.TimePoint
	Description string
	Debit       generic.Money
	Credit      generic.Money
	Balance     generic.Money
}

type Statement struct {
	PartyID generic.PartyID
	From    *generic.TimePoint
	To      *generic.TimePoint
	Rows    []StatementRow
	Closing generic.Money
}

// PartyStatement folds the party's postings in date order (stable on equal
// dates) with balance += debit - credit in each currency. Optional bounds
// filter inclusively. With no postings the closing balance is zero.
//
// The fold starts at zero for the filtered range; there is no opening
// balance carried in from postings before From.
func (e *Engine) PartyStatement(ctx context.Context, partyID generic.PartyID, from, to *generic.TimePoint) (Statement, error) {
	if from != nil && to != nil && to.Before(*from) {
		return Statement{}, generic.ErrInvalidPeriod
	}

	entries, err := e.Store.LedgerEntries(ctx, partyID)
	if err != nil {
		return Statement{}, generic.WrapStorage("ledger entries", err)
	}

	filtered := entries[:0:0]
	for _, entry := range entries {
		if from != nil && entry.Date.Before(*from) {
			continue
		}
		if to != nil && entry.Date.After(*to) {
			continue
		}
		filtered = append(filtered, entry)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Date.Before(filtered[j].Date) })

	stmt := Statement{
		PartyID: partyID,
		From:    from,
		To:      to,
		Rows:    make([]StatementRow, 0, len(filtered)),
		Closing: generic.ZeroMoney(),
	}
	balance := generic.ZeroMoney()
	for _, entry := range filtered {
		balance = balance.Add(entry.Debit).Sub(entry.Credit)
		stmt.Rows = append(stmt.Rows, StatementRow{
			EntryID:     entry.ID,
			Date:        entry.Date,
			Description: entry.Description,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
			Balance:     balance,
		})
	}
	stmt.Closing = balance
	return stmt, nil
}
