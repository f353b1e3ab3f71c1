// Package storage opens atomic units: a set of wallet, ledger and inventory
// mutations that either all land or none do.
package storage

import (
	"context"
	"sort"

	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

// LockSet names every row a unit will mutate. Rows are locked before the unit
// body runs, wallets first and then items, each in sorted order, so two units
// touching the same rows can never deadlock.
type LockSet struct {
	Owners []string
	Items  []string
}

func (l LockSet) normalized() LockSet {
	return LockSet{Owners: sortedUnique(l.Owners), Items: sortedUnique(l.Items)}
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Unit exposes the stores of one open atomic unit.
type Unit interface {
	Wallets() wallet.Store
	Ledger() ledger.Writer
	Inventory() marketplace.Inventory
}

// Runner executes fn inside a fresh unit. A nil return commits; any error
// rolls back every mutation made through the unit and is returned unchanged.
type Runner interface {
	Run(ctx context.Context, locks LockSet, fn func(ctx context.Context, u Unit) error) error
}
