package akashi_test

import (
	"context"
	"fmt"
	"log"

	"github.com/stmobo/akashi"
)

type balance struct {
	Gold int64 `json:"gold"`
}

func Example() {
	ctx := context.Background()

	w := akashi.NewWorld()
	if err := akashi.RegisterComponent(w, "balance", akashi.NewMemoryAdapter[balance]()); err != nil {
		log.Fatal(err)
	}

	player, err := w.CreateEntity(akashi.KindPlayer)
	if err != nil {
		log.Fatal(err)
	}

	if err := akashi.Set(w, player, balance{Gold: 100}); err != nil {
		log.Fatal(err)
	}
	b, err := akashi.Get[balance](ctx, w, player)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(b.Gold)

	// Dirty values persist on flush; Close runs a final one.
	if err := w.Close(ctx); err != nil {
		log.Fatal(err)
	}
	// Output: 100
}
