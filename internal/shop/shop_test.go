package shop_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/jacentio/tombstone/internal/shop"
	"github.com/jacentio/tombstone/memstore"
	"github.com/jacentio/tombstone/sqlstore"
	"github.com/jacentio/tombstone/store"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, reg *store.Registry) *store.Engine {
	cfg := store.DefaultConfig()
	cfg.Now = func() time.Time { return testNow }
	cfg.Logger = zaptest.NewLogger(t)
	return store.NewEngine(reg, cfg)
}

func TestGenerate(t *testing.T) {
	f := shop.Generate("ada", 2, 2)

	assert.Equal(t, f.Customer.ID, f.Profile.ID)
	require.Len(t, f.Orders, 2)
	require.Len(t, f.Lines, 4)
	require.Len(t, f.Notes, 1)
	assert.Len(t, f.Entities(), 1+1+2+4+1)

	// 4.50 x 1 + 12.00 x 2
	for _, o := range f.Orders {
		assert.Equal(t, "28.5", o.Total.String())
		assert.Equal(t, f.Customer.ID, o.CustomerID)
	}
	assert.NotEqual(t, f.Orders[0].ID, f.Orders[1].ID)
}

func TestMoney_Codecs(t *testing.T) {
	line := &shop.OrderLine{SKU: "POT-003", Quantity: 1, Price: shop.MustMoney("34.99")}
	line.ID = "l1"

	item, err := attributevalue.MarshalMap(line)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "34.99"}, item["price"])

	var fromItem shop.OrderLine
	require.NoError(t, attributevalue.UnmarshalMap(item, &fromItem))
	assert.True(t, fromItem.Price.Equal(line.Price.Decimal))

	doc, err := bson.Marshal(line)
	require.NoError(t, err)
	assert.Equal(t, "34.99", bson.Raw(doc).Lookup("price").StringValue())
	assert.Equal(t, "l1", bson.Raw(doc).Lookup("_id").StringValue())

	var fromDoc shop.OrderLine
	require.NoError(t, bson.Unmarshal(doc, &fromDoc))
	assert.True(t, fromDoc.Price.Equal(line.Price.Decimal))

	_, err = shop.NewMoney("twelve")
	assert.Error(t, err)
}

func TestDDL(t *testing.T) {
	stmts, err := shop.DDL("postgres")
	require.NoError(t, err)
	require.Len(t, stmts, len(shop.Tables))
	assert.Contains(t, stmts[0], "TIMESTAMPTZ")
	assert.Contains(t, stmts[3], "NUMERIC(12,2)")

	_, err = shop.DDL("oracle")
	assert.Error(t, err)
}

func TestSoftDeleteCustomer_Memory(t *testing.T) {
	ctx := context.Background()
	reg := shop.NewRegistry("")
	backend := memstore.New(reg, zaptest.NewLogger(t))
	f := shop.Generate("ada", 2, 3)
	require.NoError(t, shop.Seed(ctx, backend, testNow, f))

	engine := newEngine(t, reg)
	customers := store.NewRepository[*shop.Customer](shop.TypeCustomer, backend, engine)
	c, err := customers.GetByKey(ctx, f.Customer.ID)
	require.NoError(t, err)

	_, err = customers.Delete(ctx, c, false)
	require.NoError(t, err)

	require.NotNil(t, c.Profile)
	assert.NotNil(t, c.Profile.DeletedAt)
	require.Len(t, c.Orders, 2)
	for _, o := range c.Orders {
		require.Len(t, o.Lines, 3)
		assert.NotNil(t, o.Lines[0].DeletedAt)
	}
	assert.Nil(t, c.Notes, "owned notes are not loaded")

	for typ, want := range map[string]int64{
		shop.TypeCustomer:  0,
		shop.TypeProfile:   0,
		shop.TypeOrder:     0,
		shop.TypeOrderLine: 0,
		shop.TypeNote:      1,
	} {
		n, err := backend.Count(ctx, store.Query{Type: typ})
		require.NoError(t, err)
		assert.Equal(t, want, n, typ)
	}
}

func TestSoftDeleteProfile_Rejected(t *testing.T) {
	ctx := context.Background()
	reg := shop.NewRegistry("")
	backend := memstore.New(reg, nil)
	f := shop.Generate("ada", 0, 0)
	require.NoError(t, shop.Seed(ctx, backend, testNow, f))

	profiles := store.NewRepository[*shop.Profile](shop.TypeProfile, backend, newEngine(t, reg))
	_, err := profiles.Delete(ctx, f.Profile, false)

	var cfgErr *store.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Nil(t, f.Profile.DeletedAt)

	_, err = profiles.Delete(ctx, f.Profile, true)
	assert.NoError(t, err, "permanent deletes are not guarded")
}

func TestSchema_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "shop.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts, err := shop.DDL("sqlite")
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	reg := shop.NewRegistry("")
	cfg := sqlstore.DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	backend := sqlstore.New(db, reg, cfg)

	f := shop.Generate("grace", 1, 4)
	require.NoError(t, shop.Seed(ctx, backend, testNow, f))

	lines := store.NewRepository[*shop.OrderLine](shop.TypeOrderLine, backend, newEngine(t, reg))
	page, err := lines.List(ctx, store.ListOptions{OrderBy: "-quantity", Size: 2, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Count)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "MUG-002", page.Items[0].SKU)
	assert.True(t, page.Items[0].Price.Equal(shop.MustMoney("12").Decimal))
	assert.Equal(t, "TEA-001", page.Items[1].SKU)

	customers := store.NewRepository[*shop.Customer](shop.TypeCustomer, backend, newEngine(t, reg))
	_, err = customers.Delete(ctx, f.Customer, true)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_lines`).Scan(&n))
	assert.Zero(t, n, "permanent delete cascades in the database")
}
