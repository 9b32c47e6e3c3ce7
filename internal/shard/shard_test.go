package shard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_SingleShard(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		assert.Equal(t, "order#1#00", Key("order#1", "order_line#7", n))
	}
}

func TestKey_Deterministic(t *testing.T) {
	first := Key("order#1", "order_line#7", 16)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Key("order#1", "order_line#7", 16))
	}
}

func TestKey_WithinAll(t *testing.T) {
	for _, n := range []int{2, 16, 256, 1000} {
		all := All("customer#c1", n)
		for i := 0; i < 200; i++ {
			key := Key("customer#c1", "order#"+strings.Repeat("x", i), n)
			assert.Contains(t, all, key, "shards=%d", n)
		}
	}
}

func TestKey_SameChildDifferentParent(t *testing.T) {
	a := Key("order#1", "order_line#7", 16)
	b := Key("order#2", "order_line#7", 16)

	assert.Equal(t, a[len(a)-2:], b[len(b)-2:], "a child hashes to the same shard number under any parent")
	assert.True(t, strings.HasPrefix(a, "order#1#"))
	assert.True(t, strings.HasPrefix(b, "order#2#"))
}

func TestKey_Distribution(t *testing.T) {
	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		seen[Key("customer#c1", "order#"+string(rune('a'+i%26))+strings.Repeat("z", i/26), 16)]++
	}
	assert.Greater(t, len(seen), 8, "records should spread over most shards")
}

func TestAll(t *testing.T) {
	assert.Equal(t, []string{"order#1#00"}, All("order#1", 0))
	assert.Equal(t, []string{"order#1#00", "order#1#01", "order#1#02"}, All("order#1", 3))

	all := All("order#1", 500)
	require.Len(t, all, Max)
	assert.Equal(t, "order#1#ff", all[Max-1])
}

func BenchmarkKey_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Key("customer#c1", "order#o1", 256)
	}
}
