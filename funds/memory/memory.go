// Package memory provides an in-process funds ledger for tests and
// single-node hosts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/tickstream/funds"
	"github.com/xraph/tickstream/types"
)

var (
	_ funds.Ledger      = (*Ledger)(nil)
	_ funds.Compensator = (*Ledger)(nil)
)

// Ledger keeps free and reserved balances per account.
type Ledger struct {
	mu       sync.Mutex
	accounts map[types.AccountID]*funds.Account
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[types.AccountID]*funds.Account)}
}

// account returns the stored account, or a detached zero account that
// store inserts once an operation on it succeeds.
func (l *Ledger) account(id types.AccountID) *funds.Account {
	if a, ok := l.accounts[id]; ok {
		return a
	}
	return &funds.Account{ID: id}
}

func (l *Ledger) store(accounts ...*funds.Account) {
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}
}

// Deposit credits amount to the account's free balance.
func (l *Ledger) Deposit(_ context.Context, account types.AccountID, amount types.Balance) error {
	if err := account.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.account(account)
	free, err := a.Free.CheckedAdd(amount)
	if err != nil {
		return fmt.Errorf("funds/memory: deposit: %w", err)
	}
	a.Free = free
	l.store(a)
	return nil
}

// Account returns a copy of the account's balances.
func (l *Ledger) Account(account types.AccountID) funds.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.accounts[account]; ok {
		return *a
	}
	return funds.Account{ID: account}
}

// Accounts returns every known account ordered by ID.
func (l *Ledger) Accounts() []funds.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]funds.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reserve implements funds.Ledger.
func (l *Ledger) Reserve(_ context.Context, account types.AccountID, amount types.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.account(account)
	return l.apply(&a.Free, &a.Reserved, amount, a)
}

// Transfer implements funds.Ledger. It spends from's held balance.
func (l *Ledger) Transfer(_ context.Context, from, to types.AccountID, amount types.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.account(from)
	dst := l.account(to)
	return l.apply(&src.Reserved, &dst.Free, amount, src, dst)
}

// Unreserve implements funds.Compensator.
func (l *Ledger) Unreserve(_ context.Context, account types.AccountID, amount types.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.account(account)
	return l.apply(&a.Reserved, &a.Free, amount, a)
}

// Reverse implements funds.Compensator.
func (l *Ledger) Reverse(_ context.Context, from, to types.AccountID, amount types.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.account(from)
	dst := l.account(to)
	return l.apply(&dst.Free, &src.Reserved, amount, src, dst)
}

// apply moves amount and stores the touched accounts only on success.
func (l *Ledger) apply(src, dst *types.Balance, amount types.Balance, touched ...*funds.Account) error {
	if err := move(src, dst, amount); err != nil {
		return err
	}
	l.store(touched...)
	return nil
}

// move debits src and credits dst, or changes neither.
func move(src, dst *types.Balance, amount types.Balance) error {
	debited, err := src.CheckedSub(amount)
	if err != nil {
		return funds.ErrInsufficientFunds
	}
	credited, err := dst.CheckedAdd(amount)
	if err != nil {
		return fmt.Errorf("funds/memory: %w", err)
	}
	*src, *dst = debited, credited
	return nil
}
