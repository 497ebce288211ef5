package query_test

import (
	"fmt"

	"github.com/openfroyo/pathq/pkg/query"
)

func ExampleParse() {
	q, err := query.Parse("Account.Bank[INT:5]")
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, part := range q.Parts() {
		fmt.Println(part.Name(), part.NumIndices())
	}
	fmt.Println(q)
	// Output:
	// Account 0
	// Bank 1
	// Account.Bank[INTEGER:5]
}
