// Package redis implements funds.Ledger on Redis. Each account is a hash
// with "free" and "reserved" integer fields; every balance movement runs
// as a single Lua script so it is applied atomically on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tickstream/funds"
	"github.com/xraph/tickstream/types"
)

var (
	_ funds.Ledger      = (*Ledger)(nil)
	_ funds.Compensator = (*Ledger)(nil)
)

// MaxAmount is the largest balance the ledger stores. Lua compares
// numbers as doubles, so amounts stay within the exactly representable
// integer range.
const MaxAmount types.Balance = 1<<53 - 1

// ErrAmountTooLarge is returned for amounts or balances above MaxAmount.
var ErrAmountTooLarge = errors.New("funds/redis: amount exceeds storable range")

const (
	fieldFree     = "free"
	fieldReserved = "reserved"
)

// moveScript debits ARGV[1] of KEYS[1] and credits ARGV[2] of KEYS[2].
// Returns 1 on success, 0 when the source is short, -1 when the
// destination would exceed the storable range.
var moveScript = goredis.NewScript(`
local src = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local dst = tonumber(redis.call('HGET', KEYS[2], ARGV[2]) or '0')
local amount = tonumber(ARGV[3])
if src < amount then
  return 0
end
if dst + amount > tonumber(ARGV[5]) then
  return -1
end
redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[4])
redis.call('HINCRBY', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// creditScript credits ARGV[2] of KEYS[1] unless it would exceed ARGV[3].
var creditScript = goredis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur + tonumber(ARGV[2]) > tonumber(ARGV[3]) then
  return -1
end
redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Ledger is a Redis-backed funds ledger.
type Ledger struct {
	rdb    goredis.UniversalClient
	prefix string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithKeyPrefix sets the key prefix (default "tickstream:funds:").
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.prefix = prefix }
}

// New returns a Ledger on the given client.
func New(rdb goredis.UniversalClient, opts ...Option) *Ledger {
	l := &Ledger{rdb: rdb, prefix: "tickstream:funds:"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) key(account types.AccountID) string {
	return l.prefix + account.Key()
}

// Deposit credits amount to the account's free balance.
func (l *Ledger) Deposit(ctx context.Context, account types.AccountID, amount types.Balance) error {
	if err := account.Validate(); err != nil {
		return err
	}
	if amount > MaxAmount {
		return ErrAmountTooLarge
	}

	res, err := creditScript.Run(ctx, l.rdb,
		[]string{l.key(account)},
		fieldFree, formatAmount(amount), formatAmount(MaxAmount),
	).Int()
	if err != nil {
		return fmt.Errorf("funds/redis: deposit: %w", err)
	}
	if res < 0 {
		return ErrAmountTooLarge
	}
	return nil
}

// Account returns the account's balances. Unknown accounts are zero.
func (l *Ledger) Account(ctx context.Context, account types.AccountID) (funds.Account, error) {
	vals, err := l.rdb.HMGet(ctx, l.key(account), fieldFree, fieldReserved).Result()
	if err != nil {
		return funds.Account{}, fmt.Errorf("funds/redis: get account: %w", err)
	}

	out := funds.Account{ID: account}
	for i, dst := range []*types.Balance{&out.Free, &out.Reserved} {
		s, ok := vals[i].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return funds.Account{}, fmt.Errorf("funds/redis: parse balance %q: %w", s, err)
		}
		*dst = types.Balance(n)
	}
	return out, nil
}

// Reserve implements funds.Ledger.
func (l *Ledger) Reserve(ctx context.Context, account types.AccountID, amount types.Balance) error {
	return l.move(ctx, "reserve", account, fieldFree, account, fieldReserved, amount)
}

// Transfer implements funds.Ledger.
func (l *Ledger) Transfer(ctx context.Context, from, to types.AccountID, amount types.Balance) error {
	return l.move(ctx, "transfer", from, fieldReserved, to, fieldFree, amount)
}

// Unreserve implements funds.Compensator.
func (l *Ledger) Unreserve(ctx context.Context, account types.AccountID, amount types.Balance) error {
	return l.move(ctx, "unreserve", account, fieldReserved, account, fieldFree, amount)
}

// Reverse implements funds.Compensator.
func (l *Ledger) Reverse(ctx context.Context, from, to types.AccountID, amount types.Balance) error {
	return l.move(ctx, "reverse", to, fieldFree, from, fieldReserved, amount)
}

func (l *Ledger) move(
	ctx context.Context,
	op string,
	src types.AccountID, srcField string,
	dst types.AccountID, dstField string,
	amount types.Balance,
) error {
	if amount > MaxAmount {
		return ErrAmountTooLarge
	}

	res, err := moveScript.Run(ctx, l.rdb,
		[]string{l.key(src), l.key(dst)},
		srcField, dstField,
		formatAmount(amount), "-"+formatAmount(amount), formatAmount(MaxAmount),
	).Int()
	if err != nil {
		return fmt.Errorf("funds/redis: %s: %w", op, err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return funds.ErrInsufficientFunds
	default:
		return ErrAmountTooLarge
	}
}

func formatAmount(b types.Balance) string {
	return strconv.FormatUint(uint64(b), 10)
}
