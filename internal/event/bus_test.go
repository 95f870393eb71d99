package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		bus := NewBus()
		first, unsubFirst := bus.Subscribe()
		defer unsubFirst()
		second, unsubSecond := bus.Subscribe()
		defer unsubSecond()

		bus.Publish(New(TypeCategoryMoved, "n1", "admin", nil))

		e1 := <-first
		e2 := <-second
		assert.Equal(t, TypeCategoryMoved, e1.Type)
		assert.Equal(t, "n1", e1.NodeID)
		assert.Equal(t, e1.ID, e2.ID)
	})

	t.Run("drops when buffer is full", func(t *testing.T) {
		bus := NewBus()
		_, unsub := bus.Subscribe()
		defer unsub()

		for i := 0; i < subscriberBuffer+5; i++ {
			bus.Publish(New(TypeStatisticsRefreshed, "n1", "", nil))
		}

		assert.Equal(t, int64(5), bus.Dropped())
	})

	t.Run("unsubscribe closes the channel once", func(t *testing.T) {
		bus := NewBus()
		ch, unsub := bus.Subscribe()

		unsub()
		unsub()

		_, open := <-ch
		require.False(t, open)
	})
}
