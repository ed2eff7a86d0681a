package tickstream_test

import (
	"context"
	"fmt"

	"github.com/xraph/tickstream"
	fundsmem "github.com/xraph/tickstream/funds/memory"
	"github.com/xraph/tickstream/origin"
	storemem "github.com/xraph/tickstream/store/memory"
)

func Example() {
	ctx := context.Background()

	wallet := fundsmem.New()
	_ = wallet.Deposit(ctx, "viewer", 100)

	engine := tickstream.New(storemem.New(), wallet, tickstream.WithLogger(quietLogger()))
	if err := engine.Start(ctx); err != nil {
		panic(err)
	}
	defer engine.Stop()

	id := tickstream.StreamIDFromUint64(1)
	_ = engine.CreateStream(ctx, origin.Signed("creator"), id, 10)
	_ = engine.JoinStream(ctx, origin.Signed("viewer"), id, 5)
	_ = engine.Tick(ctx, origin.None(), id, "viewer", 3)

	r, _ := engine.Reservation(ctx, id, "viewer")
	fmt.Println("reserved:", r.Amount)
	fmt.Println("creator:", wallet.Account("creator").Free)

	err := engine.Tick(ctx, origin.None(), id, "viewer", 3)
	fmt.Println(err)

	// Output:
	// reserved: 20
	// creator: 30
	// tickstream: insufficient reserved balance: reserved 20, cost 30
}
