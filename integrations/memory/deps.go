package memory

import (
	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/session"
)

// Deps wires the ledger into a ready-to-use session dependency set. Optional
// collaborators (early payment, rules, price solver) are left nil; callers
// set the fields they need.
func Deps(l *Ledger, taxEngine common.TaxEngine) session.Deps {
	return session.Deps{
		Ledger:   l,
		Rates:    l,
		Taxes:    taxEngine,
		Invoices: l,
	}
}
