package runtime

import (
	"context"
	"sync"
	"testing"

	"pairchat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	mu    sync.Mutex
	count int
}

func (s *countingSink) Consume(_ context.Context, _ event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func TestRegistry_SubscribeAndResolve(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := uuid.New()

	sinkA := &countingSink{}
	sinkB := &countingSink{}
	registry.Subscribe("conn-a", conversationID, sinkA)
	registry.Subscribe("conn-b", conversationID, sinkB)

	sinks := registry.GetSinksForConversation(conversationID)
	req.Len(sinks, 2)

	req.Nil(registry.GetSinksForConversation(uuid.New()))
}

func TestRegistry_Unsubscribe(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conversationID := uuid.New()

	registry.Subscribe("conn-a", conversationID, &countingSink{})
	registry.Unsubscribe("conn-a", conversationID)
	req.Nil(registry.GetSinksForConversation(conversationID))

	// Leaving a group never joined is a no-op.
	registry.Unsubscribe("conn-a", uuid.New())
}

func TestRegistry_UnsubscribeAll(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := uuid.New()
	second := uuid.New()

	sink := &countingSink{}
	registry.Subscribe("conn-a", first, sink)
	registry.Subscribe("conn-a", second, sink)
	registry.Subscribe("conn-b", first, &countingSink{})

	registry.UnsubscribeAll("conn-a")

	req.Len(registry.GetSinksForConversation(first), 1)
	req.Nil(registry.GetSinksForConversation(second))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	conversationID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connectionID := uuid.NewString()
			registry.Subscribe(connectionID, conversationID, &countingSink{})
			registry.GetSinksForConversation(conversationID)
			registry.UnsubscribeAll(connectionID)
		}(i)
	}
	wg.Wait()

	require.Nil(t, registry.GetSinksForConversation(conversationID))
}
