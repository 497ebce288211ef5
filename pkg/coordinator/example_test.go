package coordinator_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/pathq/pkg/coordinator"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/vars"
)

func Example() {
	calls := 0
	bank := graph.NewResource("Bank", func(context.Context) (any, error) {
		calls++
		return []any{"copper ore", "iron ore", "mithril ore"}, nil
	}, nil)
	root := graph.NewObject().Set("Account", graph.NewObject().Set("Bank", bank))

	c, err := coordinator.New(root)
	if err != nil {
		panic(err)
	}
	defer c.Close()

	ctx := context.Background()
	v, _ := c.Resolve(ctx, "Account.Bank[INT:1]", coordinator.QuerySettings{})
	fmt.Println(v)

	settings := coordinator.QuerySettings{Variables: vars.Static{"slot": "2"}}
	v, _ = c.Resolve(ctx, "Account.Bank[INT:$slot]", settings)
	fmt.Println(v, calls)
	// Output:
	// iron ore
	// mithril ore 1
}
