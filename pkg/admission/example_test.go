package admission

import (
	"context"
	"fmt"
	"time"
)

func ExamplePipeline() {
	store := NewMemoryStore(0)
	defer store.Close()

	table := MustPolicyTable(DefaultPolicyConfig())
	pipeline := NewPipeline(store, []Policy{
		GlobalPolicy(table),
		ChatPolicy(table),
	}, nil, nil)

	req := Request{UserID: "user_123", Path: "/api/chat"}
	dec := pipeline.Evaluate(context.Background(), req)

	fmt.Println(dec.Admitted)
	fmt.Println(dec.Scope)
	// Output:
	// true
	// CHAT
}

func ExampleMemoryStore() {
	store := NewMemoryStore(0)
	defer store.Close()

	count, _, err := store.Increment(context.Background(), "chat:user:42", time.Minute)
	if err != nil {
		panic(err)
	}

	fmt.Println(count)
	// Output:
	// 1
}
