package persistence

import (
	"slices"
	"strings"

	"gorm.io/gorm/clause"
)

// invoiceSortColumns are the invoice columns a list may be ordered by
var invoiceSortColumns = []string{
	"created_at", "updated_at", "invoice_number", "issue_date",
	"due_date", "status", "total_amount", "balance",
}

// listOrder builds the ORDER BY for a list query. Unknown columns fall back to
// def and anything but "asc" sorts descending, so caller input never reaches
// the SQL text. id breaks ties to keep paging stable.
func listOrder(column, dir string, allowed []string, def string) clause.OrderBy {
	column = strings.ToLower(strings.TrimSpace(column))
	if !slices.Contains(allowed, column) {
		column = def
	}
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: column}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}
}
