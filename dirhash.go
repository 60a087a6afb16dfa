package hfs

// DirhashPoolSize is the number of tables in the LRU pool.
const DirhashPoolSize = 100

// DirhashTableSize is the number of open-addressed slots per table — a
// prime, chosen to reduce probe clustering.
const DirhashTableSize = 97

// DirhashLoadFactorLimit is the fraction of a table's slots that may be
// occupied before Insert refuses and the caller falls back to block scans.
const DirhashLoadFactorLimit = 0.85

// dirhashMaxEntries is the precomputed slot-count ceiling enforced by
// Insert.
const dirhashMaxEntries = int(DirhashTableSize*DirhashLoadFactorLimit*100) / 100

// dirhashEntry is one open-addressed slot. A slot belongs to the table's
// current tenant iff Seqno equals the table's Seqno; Offset == -1 within a
// current-tenant slot is a tombstone.
type dirhashEntry struct {
	Seqno    uint32
	NameHash uint32
	Offset   int
}

// dirhashTable is one of the pool's fixed-size hash tables, doubly linked
// into the pool's LRU list.
type dirhashTable struct {
	id      int
	ino     uint32
	seqno   uint32
	count   int
	prev    *dirhashTable
	next    *dirhashTable
	entries [DirhashTableSize]dirhashEntry
}

// DirhashPool is the process-lifetime LRU pool of per-directory hash
// tables. Every directory inode with FlagDirhash set records which
// table it's bound to (TableID) and the Seqno it expects; the pool decides
// whether that binding is still live.
type DirhashPool struct {
	tables     [DirhashPoolSize]*dirhashTable
	head, tail *dirhashTable
}

// NewDirhashPool builds the pool and wires its tables into one doubly
// linked list, head = table 0 (most-recently-used), tail = table 99.
func NewDirhashPool() *DirhashPool {
	p := &DirhashPool{}
	for i := range p.tables {
		p.tables[i] = &dirhashTable{id: i}
	}
	for i := 0; i < DirhashPoolSize; i++ {
		if i > 0 {
			p.tables[i].prev = p.tables[i-1]
		}
		if i < DirhashPoolSize-1 {
			p.tables[i].next = p.tables[i+1]
		}
	}
	p.head = p.tables[0]
	p.tail = p.tables[DirhashPoolSize-1]
	return p
}

// lruTouch unlinks t and reinserts it at the head of the LRU list.
func (p *DirhashPool) lruTouch(t *dirhashTable) {
	if p.head == t {
		return
	}
	if t.prev != nil {
		t.prev.next = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	if p.tail == t {
		p.tail = t.prev
	}
	t.prev = nil
	t.next = p.head
	if p.head != nil {
		p.head.prev = t
	}
	p.head = t
}

// lruDemote unlinks t and reinserts it at the tail of the LRU list,
// making it the next eviction candidate.
func (p *DirhashPool) lruDemote(t *dirhashTable) {
	if p.tail == t {
		return
	}
	if t.prev != nil {
		t.prev.next = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	if p.head == t {
		p.head = t.next
	}
	t.next = nil
	t.prev = p.tail
	if p.tail != nil {
		p.tail.next = t
	}
	p.tail = t
}

// lruGetLast promotes the current tail to head and returns it, freeing up
// the actual new tail for the next eviction.
func (p *DirhashPool) lruGetLast() *dirhashTable {
	last := p.tail
	p.lruTouch(last)
	return last
}

// fnvIndexHash picks a slot within a 97-entry table via an FNV-1a-style
// hash of the name, modulo DirhashTableSize.
func fnvIndexHash(name string) int {
	h := uint32(0)
	for i := 0; i < len(name); i++ {
		h = h * 16777619
		h ^= uint32(name[i])
	}
	return int(h % DirhashTableSize)
}

// djb2NameHash is the verification hash stored alongside each entry so a
// lookup can confirm a match without re-comparing name bytes.
func djb2NameHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

func (t *dirhashTable) validFor(ino uint32, seqno uint32) bool {
	return t.ino == ino && t.seqno == seqno
}

// IsValid reports whether tableID currently belongs to (ino, seqno) — the
// dirty check dirops.go performs before trusting a directory's stored
// dirhash record.
func (p *DirhashPool) IsValid(ino uint32, tableID int, seqno uint32) bool {
	if tableID < 0 || tableID >= DirhashPoolSize {
		return false
	}
	return p.tables[tableID].validFor(ino, seqno)
}

// Bind evicts the least-recently-used table, binds it to ino with a fresh
// sequence number, and returns the (tableID, seqno) pair the caller must
// persist into the directory's dirhash record. The
// bumped seqno alone invalidates every slot left over from the table's
// previous tenant — no scrubbing needed. The table starts empty; the
// caller is responsible for re-inserting every live dentry in the
// directory's block.
func (p *DirhashPool) Bind(ino uint32) (tableID int, seqno uint32) {
	t := p.lruGetLast()
	t.seqno++
	t.ino = ino
	t.count = 0
	for i := range t.entries {
		t.entries[i] = dirhashEntry{}
	}
	return t.id, t.seqno
}

// Lookup returns the byte offset of the dentry named name, if the pool
// holds a live binding for (ino, tableID, seqno) and the name is present.
// ok is false on a miss or a stale/absent binding. The caller rebuilds a
// stale or absent binding before looking up, and treats a miss against a
// valid binding as not-found without a block scan.
func (p *DirhashPool) Lookup(ino uint32, tableID int, seqno uint32, name string) (offset int, ok bool) {
	if tableID < 0 || tableID >= DirhashPoolSize {
		return 0, false
	}
	t := p.tables[tableID]
	if !t.validFor(ino, seqno) {
		return 0, false
	}

	target := djb2NameHash(name)
	idx := fnvIndexHash(name)
	for i := 0; i < DirhashTableSize; i++ {
		slot := idx + i
		if slot >= DirhashTableSize {
			slot -= DirhashTableSize
		}
		e := t.entries[slot]
		if e.Seqno != t.seqno {
			// Foreign slot: either never written, or belongs to a prior
			// tenant. Either way this table holds no entry for the name.
			return 0, false
		}
		if e.Offset < 0 {
			// Tombstone: skip past it and keep probing.
			continue
		}
		if e.NameHash == target {
			return e.Offset, true
		}
	}
	return 0, false
}

// Insert binds name -> offset into the table at tableID for (ino, seqno).
// ok is false when the table's load factor would exceed
// 85%; the caller must then clear FlagDirhash on the directory and fall
// back to block scans.
func (p *DirhashPool) Insert(ino uint32, tableID int, seqno uint32, name string, offset int) (ok bool) {
	if tableID < 0 || tableID >= DirhashPoolSize {
		return false
	}
	t := p.tables[tableID]
	if !t.validFor(ino, seqno) {
		return false
	}
	if t.count >= dirhashMaxEntries {
		p.lruDemote(t) // caller clears FlagDirhash; the table becomes the next eviction candidate
		return false
	}

	target := djb2NameHash(name)
	idx := fnvIndexHash(name)
	for i := 0; i < DirhashTableSize; i++ {
		slot := idx + i
		if slot >= DirhashTableSize {
			slot -= DirhashTableSize
		}
		e := &t.entries[slot]
		if e.Seqno == t.seqno {
			if e.NameHash == target {
				// An existing name-hash match at an occupied slot for the
				// current seqno is treated as an overwrite rather than a
				// collision, accepting the small false-match risk instead of
				// probing further for a true djb2 collision.
				e.Offset = offset
				p.lruTouch(t)
				return true
			}
			continue
		}
		// Foreign or empty slot: claim it.
		*e = dirhashEntry{Seqno: t.seqno, NameHash: target, Offset: offset}
		t.count++
		p.lruTouch(t)
		return true
	}
	return false
}

// Delete tombstones name within the table, if bound and present. The
// sequence number stays so the slot is still correctly
// skipped-past by future probes.
func (p *DirhashPool) Delete(ino uint32, tableID int, seqno uint32, name string) {
	if tableID < 0 || tableID >= DirhashPoolSize {
		return
	}
	t := p.tables[tableID]
	if !t.validFor(ino, seqno) {
		return
	}
	target := djb2NameHash(name)
	idx := fnvIndexHash(name)
	for i := 0; i < DirhashTableSize; i++ {
		slot := idx + i
		if slot >= DirhashTableSize {
			slot -= DirhashTableSize
		}
		e := &t.entries[slot]
		if e.Seqno != t.seqno {
			return
		}
		if e.Offset >= 0 && e.NameHash == target {
			e.Offset = -1
			return
		}
	}
}
