package appname

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_Lookup(t *testing.T) {
	tbl := NewTable(map[string]string{"ABC-123": "Sales"})

	name, ok := tbl.LookupAppName("abc-123")
	assert.True(t, ok)
	assert.Equal(t, "Sales", name)

	_, ok = tbl.LookupAppName("missing")
	assert.False(t, ok)

	_, ok = tbl.LookupAppName("")
	assert.False(t, ok)
}

func TestTable_Replace(t *testing.T) {
	tbl := NewTable(nil)
	assert.Equal(t, 0, tbl.Len())

	tbl.Replace(map[string]string{"a": "A", "b": "B"})
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "B", NameOrUnknown(tbl, "b"))
}

func TestNameOrUnknown(t *testing.T) {
	assert.Equal(t, Unknown, NameOrUnknown(nil, "x"))
	assert.Equal(t, Unknown, NameOrUnknown(NewTable(nil), "x"))
}

func TestTable_ConcurrentReplace(t *testing.T) {
	tbl := NewTable(map[string]string{"a": "A"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tbl.Replace(map[string]string{"a": "A"})
		}()
		go func() {
			defer wg.Done()
			name, _ := tbl.LookupAppName("a")
			assert.Equal(t, "A", name)
		}()
	}
	wg.Wait()
}
