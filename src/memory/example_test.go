package memory

import (
	"context"
	"fmt"

	"github.com/Protocol-Lattice/go-companion/src/memory/embed"
	"github.com/Protocol-Lattice/go-companion/src/memory/history"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
)

func ExampleCoordinator() {
	backend, _ := vector.NewChromemBackend("", "example")
	index := vector.NewIndex(backend, embed.DummyEmbedder{Dim: 64}, 64, nil)
	coord := NewCoordinator(history.New(history.NewMemoryBackend(), nil), index, Options{})
	ctx := context.Background()
	key := model.NewKey("ava", "user-1")

	_ = coord.PersistExchange(ctx, key, model.FormatExchange("I love hiking", "Ava", "Where do you hike?"), nil)

	mem := coord.AssembleContext(ctx, key, "hiking")
	fmt.Println(mem.RecentHistory)
	fmt.Println(len(mem.RelevantPast))
	// Output:
	// Human: I love hiking
	// Ava: Where do you hike?
	// 1
}
