// Package txpool holds unsigned transactions between submission and
// inclusion in a block.
//
// Admission metadata comes from a Validator (normally an
// admission.Policy): the pool orders ready transactions by priority,
// refuses a second pending transaction providing an occupied tag, and
// drops transactions whose longevity has run out.
package txpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/call"
)

var (
	// ErrRejected wraps a validation failure.
	ErrRejected = errors.New("txpool: transaction rejected")
	// ErrAlreadyImported is returned when the same call is already pending.
	ErrAlreadyImported = errors.New("txpool: transaction already imported")
	// ErrTagInUse is returned when a pending transaction already provides
	// one of the submitted transaction's tags.
	ErrTagInUse = errors.New("txpool: tag already provided by a pending transaction")
)

// Validator assigns pool metadata to a submission.
type Validator interface {
	Validate(source admission.Source, c call.Call) (admission.Validity, error)
}

// Tx is a pending transaction.
type Tx struct {
	Hash     call.Hash
	Call     call.Call
	Source   admission.Source
	Validity admission.Validity
	// Submitted is the block number current when the tx entered the pool.
	Submitted admission.BlockNumber

	seq uint64
}

// ExpiresAt is the first block at which the tx is no longer valid.
func (tx *Tx) ExpiresAt() admission.BlockNumber {
	return tx.Submitted + admission.BlockNumber(tx.Validity.Longevity)
}

// Pool is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	validator Validator
	logger    *slog.Logger

	txs  map[call.Hash]*Tx
	tags map[admission.Tag]call.Hash
	seq  uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for pool diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates an empty pool.
func New(v Validator, opts ...Option) *Pool {
	p := &Pool{
		validator: v,
		logger:    slog.Default(),
		txs:       make(map[call.Hash]*Tx),
		tags:      make(map[admission.Tag]call.Hash),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates c and adds it to the pool at block number at.
func (p *Pool) Submit(source admission.Source, c call.Call, at admission.BlockNumber) (call.Hash, error) {
	validity, err := p.validator.Validate(source, c)
	if err != nil {
		return call.Hash{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	hash, err := call.HashOf(c)
	if err != nil {
		return call.Hash{}, fmt.Errorf("txpool: hash call: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked(at)

	if _, exists := p.txs[hash]; exists {
		return hash, ErrAlreadyImported
	}
	for _, tag := range validity.Provides {
		if holder, taken := p.tags[tag]; taken {
			return hash, fmt.Errorf("%w: %s held by %s", ErrTagInUse, tag, holder)
		}
	}

	p.seq++
	tx := &Tx{
		Hash:      hash,
		Call:      c,
		Source:    source,
		Validity:  validity,
		Submitted: at,
		seq:       p.seq,
	}
	p.txs[hash] = tx
	for _, tag := range validity.Provides {
		p.tags[tag] = hash
	}

	p.logger.Debug("txpool: imported",
		"hash", hash.String(),
		"call", c.String(),
		"source", source.String(),
		"expires_at", uint64(tx.ExpiresAt()),
	)
	return hash, nil
}

// Ready returns the transactions still valid at block number at, highest
// priority first and in submission order among equals. Expired
// transactions are dropped as a side effect.
func (p *Pool) Ready(at admission.BlockNumber) []*Tx {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked(at)

	ready := make([]*Tx, 0, len(p.txs))
	for _, tx := range p.txs {
		cp := *tx
		ready = append(ready, &cp)
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Validity.Priority != ready[j].Validity.Priority {
			return ready[i].Validity.Priority > ready[j].Validity.Priority
		}
		return ready[i].seq < ready[j].seq
	})
	return ready
}

// Propagatable returns the hashes of pending transactions marked for relay.
func (p *Pool) Propagatable() []call.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []call.Hash
	for h, tx := range p.txs {
		if tx.Validity.Propagate {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return p.txs[out[i]].seq < p.txs[out[j]].seq })
	return out
}

// Remove drops included transactions and releases their tags.
func (p *Pool) Remove(hashes ...call.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range hashes {
		p.removeLocked(h)
	}
}

// Prune drops transactions that are no longer valid at block number at
// and returns how many were dropped.
func (p *Pool) Prune(at admission.BlockNumber) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pruneLocked(at)
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// Get returns a copy of the pending transaction with the given hash.
func (p *Pool) Get(h call.Hash) (*Tx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.txs[h]
	if !ok {
		return nil, false
	}
	cp := *tx
	return &cp, true
}

func (p *Pool) pruneLocked(at admission.BlockNumber) int {
	dropped := 0
	for h, tx := range p.txs {
		if at >= tx.ExpiresAt() {
			p.removeLocked(h)
			dropped++
			p.logger.Debug("txpool: expired",
				"hash", h.String(),
				"call", tx.Call.String(),
				"block", uint64(at),
			)
		}
	}
	return dropped
}

func (p *Pool) removeLocked(h call.Hash) {
	tx, ok := p.txs[h]
	if !ok {
		return
	}
	for _, tag := range tx.Validity.Provides {
		if p.tags[tag] == h {
			delete(p.tags, tag)
		}
	}
	delete(p.txs, h)
}
