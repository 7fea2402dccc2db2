package incremental

import (
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

// table is a typed sync.Map. Writes are per key.
type table[K comparable, V any] struct {
	m sync.Map
}

func (t *table[K, V]) load(k K) (V, bool) {
	v, ok := t.m.Load(k)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (t *table[K, V]) store(k K, v V) {
	t.m.Store(k, v)
}

func (t *table[K, V]) delete(k K) {
	t.m.Delete(k)
}

func (t *table[K, V]) rangeAll(fn func(K, V) bool) {
	t.m.Range(func(k, v any) bool {
		return fn(k.(K), v.(V))
	})
}

func (t *table[K, V]) len() int {
	n := 0
	t.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// memberEntry is the memoized scan of one member.
type memberEntry struct {
	digest digest.Digest
	scan   propgen.ScanResult
}

// groupEntry is the cached outcome of one group. diags holds the emission
// diagnostics; resolution diagnostics are recomputed every pass.
type groupEntry struct {
	digest   digest.Digest
	artifact *propgen.Artifact
	diags    []*errors.Error
}

// staged collects the writes of one pass.
type staged struct {
	members map[decl.MemberID]memberEntry
	groups  map[decl.TypeID]groupEntry
}

func newStaged() *staged {
	return &staged{
		members: make(map[decl.MemberID]memberEntry),
		groups:  make(map[decl.TypeID]groupEntry),
	}
}

// commit replaces the table contents with the staged pass. Entries the
// pass did not see are dropped.
func commit[K comparable, V any](t *table[K, V], pass map[K]V) {
	t.rangeAll(func(k K, _ V) bool {
		if _, ok := pass[k]; !ok {
			t.delete(k)
		}
		return true
	})
	for k, v := range pass {
		t.store(k, v)
	}
}
