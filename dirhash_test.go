package hfs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirhashBindInsertLookup(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(100)

	ok := p.Insert(100, tableID, seqno, "foo.txt", 64)
	require.True(t, ok)

	offset, ok := p.Lookup(100, tableID, seqno, "foo.txt")
	require.True(t, ok)
	assert.Equal(t, 64, offset)
}

func TestDirhashLookupMissOnAbsentName(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)
	p.Insert(1, tableID, seqno, "a", 0)

	_, ok := p.Lookup(1, tableID, seqno, "b")
	assert.False(t, ok)
}

func TestDirhashLookupStaleBindingMisses(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)
	p.Insert(1, tableID, seqno, "a", 0)

	_, ok := p.Lookup(1, tableID, seqno+1, "a")
	assert.False(t, ok, "a stale sequence number must not see the prior tenant's entries")
}

func TestDirhashDeleteTombstones(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)
	p.Insert(1, tableID, seqno, "a", 10)

	p.Delete(1, tableID, seqno, "a")
	_, ok := p.Lookup(1, tableID, seqno, "a")
	assert.False(t, ok)
}

func TestDirhashInsertOverwritesSameName(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)
	p.Insert(1, tableID, seqno, "a", 10)
	p.Insert(1, tableID, seqno, "a", 20)

	offset, ok := p.Lookup(1, tableID, seqno, "a")
	require.True(t, ok)
	assert.Equal(t, 20, offset)
}

func TestDirhashInsertRefusesOverLoadFactor(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)

	inserted := 0
	for i := 0; i < DirhashTableSize; i++ {
		if p.Insert(1, tableID, seqno, fmt.Sprintf("name-%d", i), i) {
			inserted++
		}
	}
	assert.LessOrEqual(t, inserted, dirhashMaxEntries)
}

func TestDirhashBindEvictsLeastRecentlyUsed(t *testing.T) {
	p := NewDirhashPool()

	var firstID int
	for i := 0; i < DirhashPoolSize; i++ {
		id, _ := p.Bind(uint32(i))
		if i == 0 {
			firstID = id
		}
	}

	// Every table has now been bound exactly once in LRU order; the very
	// first one bound should be the next one evicted.
	idAgain, _ := p.Bind(999)
	assert.Equal(t, firstID, idAgain)
}

func TestDirhashIsValidAfterRebind(t *testing.T) {
	p := NewDirhashPool()
	tableID, seqno := p.Bind(1)
	assert.True(t, p.IsValid(1, tableID, seqno))

	newTableID, newSeqno := p.Bind(2)
	if newTableID == tableID {
		assert.False(t, p.IsValid(1, tableID, seqno))
		assert.True(t, p.IsValid(2, newTableID, newSeqno))
	}
}
