package novagrid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema(version int32) *Schema {
	return &Schema{
		Version:        version,
		KeyColumnCount: 1,
		Columns: []Column{
			{Name: "id", Type: TypeInt64, Key: true},
			{Name: "name", Type: TypeString, Nullable: true},
		},
	}
}

func TestSchemaRegistry_EmptyMeansUnknown(t *testing.T) {
	r := newSchemaRegistry()
	require.Equal(t, int32(-1), r.latestVersion())
	require.Nil(t, r.get(0))
}

func TestSchemaRegistry_LatestIsMax(t *testing.T) {
	r := newSchemaRegistry()
	for _, v := range []int32{3, 1, 7, 2} {
		r.add(testSchema(v))
	}
	require.Equal(t, int32(7), r.latestVersion())
	for _, v := range []int32{1, 2, 3, 7} {
		require.NotNil(t, r.get(v), "version %d", v)
	}
}

func TestSchemaRegistry_StaleLoadDoesNotRegress(t *testing.T) {
	r := newSchemaRegistry()
	r.add(testSchema(5))
	r.add(testSchema(2)) // late arrival of an old version
	require.Equal(t, int32(5), r.latestVersion())
	require.NotNil(t, r.get(2))
}

func TestSchemaRegistry_FirstInsertionWins(t *testing.T) {
	r := newSchemaRegistry()
	first := testSchema(1)
	r.add(first)
	r.add(testSchema(1))
	require.Same(t, first, r.get(1))
}

func TestSchemaRegistry_ConcurrentAdds(t *testing.T) {
	r := newSchemaRegistry()
	var wg sync.WaitGroup
	for v := int32(0); v < 64; v++ {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			r.add(testSchema(v))
		}(v)
	}
	wg.Wait()

	require.Equal(t, int32(63), r.latestVersion())
	for v := int32(0); v < 64; v++ {
		require.NotNil(t, r.get(v))
	}
}
