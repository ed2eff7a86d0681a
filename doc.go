// Package tickstream meters pay-per-second access to live streams and
// settles payment incrementally.
//
// A creator registers a stream with a price per second. A viewer joins by
// escrowing price * max_seconds of their funds. An unsigned tick signal
// then reports elapsed seconds, and each tick moves exactly
// price * ticks from the viewer's escrow to the creator.
//
// The ledger guarantees that a viewer is never charged more than they
// escrowed, that settlement is monotone (a stream's tick counter only
// grows, so the same second is never charged twice), and that a failed
// transition leaves the ledger exactly as it was.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tickstream"
//	    "github.com/xraph/tickstream/funds/memory"
//	    "github.com/xraph/tickstream/origin"
//	    storemem "github.com/xraph/tickstream/store/memory"
//	)
//
//	wallet := memory.New()
//	engine := tickstream.New(storemem.New(), wallet)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	id := tickstream.StreamIDFromUint64(1)
//	_ = engine.CreateStream(ctx, origin.Signed("creator"), id, 10)
//	_ = engine.JoinStream(ctx, origin.Signed("viewer"), id, 5) // holds 50
//	_ = engine.Tick(ctx, origin.None(), id, "viewer", 3)      // settles 30
//
// # Origins
//
// Creating and joining streams are signed by the acting account. Ticks are
// dispatched with origin.None: the tick source signs nothing, so the only
// protection against abuse is structural. A tick can name any viewer, but
// it can only drain that viewer's own reservation on that stream.
//
// # Admission
//
// Before an unsigned tick reaches the engine, the host's transaction pool
// consults admission.Policy. The policy looks only at the shape of the
// call, assigns a fixed priority, a dedup tag scoped to the stream and a
// short longevity, and rejects everything that is not a tick. See the
// txpool and host packages for a reference pool and block host.
//
// # Storage
//
// Stores live under store/: memory for tests, and sqlite, postgres and
// mongo backends built on Grove. Every backend applies a tick settlement
// in a single atomic write.
package tickstream
