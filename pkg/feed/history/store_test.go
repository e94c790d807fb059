package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(price float64) Entry {
	return Entry{Price: decimal.NewFromFloat(price), Timestamp: time.Now()}
}

func TestStore_AppendAndEntries(t *testing.T) {
	store := NewStore(10)

	store.Append("SOL", entry(100))
	store.Append("SOL", entry(101))

	entries := store.Entries("SOL")
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, entries[1].Price.Equal(decimal.NewFromInt(101)))
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	store := NewStore(100)

	for i := 0; i < 150; i++ {
		store.Append("BTC", entry(float64(i)))
	}

	entries := store.Entries("BTC")
	require.Len(t, entries, 100)
	// Oldest 50 evicted, ordering preserved
	assert.True(t, entries[0].Price.Equal(decimal.NewFromInt(50)))
	assert.True(t, entries[99].Price.Equal(decimal.NewFromInt(149)))
}

func TestStore_SymbolsAreCanonicalized(t *testing.T) {
	store := NewStore(5)

	store.Append("sol", entry(100))
	store.Append("SOL", entry(101))

	assert.Equal(t, 2, store.Len("Sol"))
	assert.Equal(t, []string{"SOL"}, store.Symbols())
}

func TestStore_EntriesReturnsCopy(t *testing.T) {
	store := NewStore(5)
	store.Append("ETH", entry(3000))

	entries := store.Entries("ETH")
	entries[0].Price = decimal.NewFromInt(1)

	assert.True(t, store.Entries("ETH")[0].Price.Equal(decimal.NewFromInt(3000)))
}

func TestStore_ClearAndClearAll(t *testing.T) {
	store := NewStore(5)
	store.Append("SOL", entry(100))
	store.Append("BTC", entry(64000))

	store.Clear("sol")
	assert.Equal(t, 0, store.Len("SOL"))
	assert.Equal(t, 1, store.Len("BTC"))

	store.ClearAll()
	assert.Empty(t, store.Symbols())
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store := NewStore(100)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				store.Append(fmt.Sprintf("SYM%d", g%2), entry(float64(i)))
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.Equal(t, 100, store.Len("SYM0"))
	assert.Equal(t, 100, store.Len("SYM1"))
}
