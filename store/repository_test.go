package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/tombstone/store"
)

func newOrderRepo(t *testing.T) (*store.Repository[*Order], *recordingBackend) {
	t.Helper()
	reg := newRegistry()
	b := newRecordingBackend(reg)
	return store.NewRepository[*Order]("order", b, newEngine(reg)), b
}

func TestRepository_AddAndGet(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrderRepo(t)

	order := newOrder("1", "c1")
	order.Total = 42
	_, err := repo.Add(ctx, order)
	require.NoError(t, err)
	assert.True(t, order.CreatedAt.Equal(testNow))

	got, err := repo.GetByKey(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CustomerID)
	assert.Equal(t, 42, got.Total)
	assert.Nil(t, got.DeletedAt)
	assert.Nil(t, got.Lines)

	_, err = repo.GetByKey(ctx, "2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Add(ctx, newOrder("1", "c2"))
	var ce *store.CommitError
	assert.ErrorAs(t, err, &ce)
}

func TestRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrderRepo(t)

	order := newOrder("1", "c1")
	_, err := repo.Add(ctx, order)
	require.NoError(t, err)

	order.Total = 7
	_, err = repo.Update(ctx, order)
	require.NoError(t, err)
	require.NotNil(t, order.UpdatedAt)

	got, err := repo.Get(ctx, store.ListOptions{Where: map[string]any{"customer_id": "c1"}})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Total)
	require.NotNil(t, got.UpdatedAt)

	_, err = repo.Update(ctx, newOrder("missing", "c1"))
	assert.ErrorIs(t, err, store.ErrConcurrentModification)
}

func TestRepository_SoftDelete(t *testing.T) {
	ctx := context.Background()
	repo, b := newOrderRepo(t)
	require.NoError(t, seed(ctx, b, newLine("10", "1", 1), newLine("11", "1", 1)))

	_, err := repo.Add(ctx, newOrder("1", "c1"))
	require.NoError(t, err)

	order, err := repo.GetByKey(ctx, "1")
	require.NoError(t, err)
	_, err = repo.Delete(ctx, order, false)
	require.NoError(t, err)

	require.Len(t, b.commits, 2)
	assert.Equal(t, []string{"order#1", "order_line#10", "order_line#11"}, refs(b.commits[1].Entities(store.Update)))

	_, err = repo.GetByKey(ctx, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	deleted, err := repo.Get(ctx, store.ListOptions{Where: map[string]any{"id": "1"}, WithDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.True(t, deleted.DeletedAt.Equal(testNow))

	lines, err := b.Count(ctx, store.Query{Type: "order_line"})
	require.NoError(t, err)
	assert.Zero(t, lines)

	// Deleting again is a no-op.
	_, err = repo.Delete(ctx, deleted, false)
	require.NoError(t, err)
	require.Len(t, b.commits, 3)
	assert.Zero(t, b.commits[2].Len())
}

func TestRepository_PermanentDeleteBypassesCascade(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	b := newRecordingBackend(reg)
	repo := store.NewRepository[*Profile]("profile", b, newEngine(reg))

	profile := &Profile{Bio: "hello"}
	profile.ID = "c1"
	_, err := repo.Add(ctx, profile)
	require.NoError(t, err)

	_, err = repo.Delete(ctx, profile, false)
	assert.ErrorIs(t, err, store.ErrOneToOneOnPrimaryKey)
	assert.Len(t, b.commits, 1)
	assert.Nil(t, profile.DeletedAt)

	_, err = repo.Delete(ctx, profile, true)
	require.NoError(t, err)
	assert.Empty(t, b.loads)
	assert.Nil(t, profile.DeletedAt)
	assert.Zero(t, b.Len("profile"))
}

func TestRepository_CommitErrorRevertsMarks(t *testing.T) {
	ctx := context.Background()
	repo, b := newOrderRepo(t)

	order := newOrder("1", "c1")
	_, err := repo.Add(ctx, order)
	require.NoError(t, err)

	b.commitErr = errConnection
	_, err = repo.Delete(ctx, order, false)
	require.Error(t, err)

	var ce *store.CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Staged)
	assert.ErrorIs(t, err, errConnection)
	assert.Nil(t, order.DeletedAt)

	b.commitErr = nil
	_, err = repo.GetByKey(ctx, "1")
	assert.NoError(t, err)
}

func TestRepository_DeleteRange(t *testing.T) {
	ctx := context.Background()
	repo, b := newOrderRepo(t)
	require.NoError(t, seed(ctx, b, newLine("10", "1", 1), newLine("20", "2", 1)))

	orders := []*Order{newOrder("1", "c1"), newOrder("2", "c1"), newOrder("3", "c2")}
	_, err := repo.AddRange(ctx, orders)
	require.NoError(t, err)

	_, err = repo.DeleteRange(ctx, orders[:2], false)
	require.NoError(t, err)
	require.Len(t, b.commits, 2)
	assert.Equal(t,
		[]string{"order#1", "order_line#10", "order#2", "order_line#20"},
		refs(b.commits[1].Entities(store.Update)))

	n, err := b.Count(ctx, store.Query{Type: "order"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.DeleteRange(ctx, orders, true)
	require.NoError(t, err)
	assert.Zero(t, b.Len("order"))
}

func TestRepository_DeleteRangeWithDescendantRoot(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	b := newRecordingBackend(reg)
	require.NoError(t, seed(ctx, b, newNode("a", ""), newNode("b", "a")))

	repo := store.NewRepository[*Node]("node", b, newEngine(reg))
	a, err := repo.GetByKey(ctx, "a")
	require.NoError(t, err)
	child, err := repo.GetByKey(ctx, "b")
	require.NoError(t, err)

	deleted, err := repo.DeleteRange(ctx, []*Node{a, child}, false)
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	for _, n := range deleted {
		require.NotNil(t, n.DeletedAt, n.ID)
		assert.True(t, n.DeletedAt.Equal(testNow), n.ID)
	}

	live, err := b.Count(ctx, store.Query{Type: "node"})
	require.NoError(t, err)
	assert.Zero(t, live)
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrderRepo(t)

	var orders []*Order
	for i := 0; i < 25; i++ {
		o := newOrder(fmt.Sprintf("o%02d", i), "c1")
		o.Total = i
		orders = append(orders, o)
	}
	_, err := repo.AddRange(ctx, orders)
	require.NoError(t, err)
	_, err = repo.Delete(ctx, orders[24], false)
	require.NoError(t, err)

	page, err := repo.List(ctx, store.ListOptions{OrderBy: "-total", Index: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(24), page.Count)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 10, page.Size)
	assert.True(t, page.HasPrevious)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 10)
	assert.Equal(t, 13, page.Items[0].Total)
	assert.Equal(t, 4, page.Items[9].Total)

	page, err = repo.List(ctx, store.ListOptions{OrderBy: "total", Index: 4, Size: 5, WithDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Count)
	assert.Equal(t, 5, page.Pages)
	assert.False(t, page.HasNext)
	require.Len(t, page.Items, 5)
	assert.Equal(t, 24, page.Items[4].Total)

	page, err = repo.List(ctx, store.ListOptions{Where: map[string]any{"customer_id": "nobody"}})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Pages)
}

func TestRepository_Any(t *testing.T) {
	ctx := context.Background()
	repo, _ := newOrderRepo(t)

	ok, err := repo.Any(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.False(t, ok)

	order := newOrder("1", "c1")
	_, err = repo.Add(ctx, order)
	require.NoError(t, err)

	ok, err = repo.Any(ctx, store.ListOptions{Where: map[string]any{"customer_id": "c1"}})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Delete(ctx, order, false)
	require.NoError(t, err)

	ok, err = repo.Any(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_UnknownType(t *testing.T) {
	reg := newRegistry()
	repo := store.NewRepository[*Order]("invoice", newRecordingBackend(reg), newEngine(reg))

	_, err := repo.GetByKey(context.Background(), "1")
	assert.ErrorIs(t, err, store.ErrUnknownType)
}
