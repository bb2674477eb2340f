package native

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	xxhash "github.com/cespare/xxhash/v2"

	"github.com/vishal-h/explorer/internal/column"
)

// keyTable assigns dense ids to encoded row keys in order of first
// insertion. Keys are bucketed by their xxhash and compared byte-wise
// within a bucket.
type keyTable struct {
	buckets map[uint64][]keyEntry
	size    int
}

type keyEntry struct {
	key string
	id  int
}

func newKeyTable(estimatedSize int) *keyTable {
	return &keyTable{buckets: make(map[uint64][]keyEntry, estimatedSize)}
}

// insert returns the id of key, adding it if absent.
func (t *keyTable) insert(key []byte) (id int, added bool) {
	hash := xxhash.Sum64(key)
	for _, e := range t.buckets[hash] {
		if e.key == string(key) {
			return e.id, false
		}
	}
	id = t.size
	t.buckets[hash] = append(t.buckets[hash], keyEntry{key: string(key), id: id})
	t.size++
	return id, true
}

// lookup returns the id of key.
func (t *keyTable) lookup(key []byte) (int, bool) {
	for _, e := range t.buckets[xxhash.Sum64(key)] {
		if e.key == string(key) {
			return e.id, true
		}
	}
	return 0, false
}

func (t *keyTable) len() int { return t.size }

// rowEncoder serializes the values of several columns at one row into a
// byte key. Equal values encode equally, including values of categorical
// columns with different dictionaries.
type rowEncoder struct {
	cols []arrow.Array
	buf  []byte
}

func newRowEncoder(cols []arrow.Array) *rowEncoder {
	return &rowEncoder{cols: cols}
}

// hasNull reports whether any key column is missing at row i.
func (e *rowEncoder) hasNull(i int) bool {
	for _, c := range e.cols {
		if c.IsNull(i) {
			return true
		}
	}
	return false
}

// encode returns the key of row i. The slice is reused by the next call.
func (e *rowEncoder) encode(i int) []byte {
	e.buf = e.buf[:0]
	for _, c := range e.cols {
		e.buf = appendValue(e.buf, column.Value(c, i))
	}
	return e.buf
}

func appendValue(buf []byte, v any) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	switch x := v.(type) {
	case int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(x))
	case uint64:
		return binary.LittleEndian.AppendUint64(buf, x)
	case float64:
		switch {
		case math.IsNaN(x):
			x = math.NaN()
		case x == 0:
			x = 0
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	case bool:
		if x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case string:
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		return append(buf, x...)
	case []byte:
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		return append(buf, x...)
	case time.Time:
		return binary.LittleEndian.AppendUint64(buf, uint64(x.UnixNano()))
	case time.Duration:
		return binary.LittleEndian.AppendUint64(buf, uint64(x))
	default:
		s := fmt.Sprint(x)
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		return append(buf, s...)
	}
}

// groupRows assigns every row of n a group id by the values of cols.
// Groups are numbered in order of first occurrence and firsts holds the
// first row of each group. Missing values form their own group. With no
// columns every row belongs to group 0.
func groupRows(cols []arrow.Array, n int) (ids []int, firsts []int) {
	ids = make([]int, n)
	if len(cols) == 0 {
		if n > 0 {
			firsts = []int{0}
		}
		return ids, firsts
	}
	enc := newRowEncoder(cols)
	table := newKeyTable(n)
	for i := 0; i < n; i++ {
		id, added := table.insert(enc.encode(i))
		if added {
			firsts = append(firsts, i)
		}
		ids[i] = id
	}
	return ids, firsts
}

// groupMembers lists the rows of every group in row order.
func groupMembers(ids []int, groups int) [][]int {
	members := make([][]int, groups)
	for row, id := range ids {
		members[id] = append(members[id], row)
	}
	return members
}

// compareValues orders two canonical values of the same type. NaN sorts
// after every other float.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64))
	case uint64:
		return cmp.Compare(x, b.(uint64))
	case float64:
		y := b.(float64)
		switch xn, yn := math.IsNaN(x), math.IsNaN(y); {
		case xn && yn:
			return 0
		case xn:
			return 1
		case yn:
			return -1
		}
		return cmp.Compare(x, y)
	case string:
		return cmp.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case time.Time:
		return x.Compare(b.(time.Time))
	case time.Duration:
		return cmp.Compare(x, b.(time.Duration))
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}
