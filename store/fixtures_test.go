package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jacentio/tombstone/memstore"
	"github.com/jacentio/tombstone/store"
)

// --- Test Entity Types ---

type Customer struct {
	store.Base[string] `bson:",inline"`
	Name               string `bson:"name"`

	Orders  []*Order `bson:"-"`
	Profile *Profile `bson:"-"`
	Notes   []*Note  `bson:"-"`
}

func (*Customer) EntityType() string { return "customer" }

// Profile shares its primary key with the customer it belongs to.
type Profile struct {
	store.Base[string] `bson:",inline"`
	Bio                string `bson:"bio"`
}

func (*Profile) EntityType() string { return "profile" }

type Order struct {
	store.Base[string] `bson:",inline"`
	CustomerID         string `bson:"customer_id"`
	Total              int    `bson:"total"`

	Customer  *Customer    `bson:"-"`
	Lines     []*OrderLine `bson:"-"`
	Audits    []*Audit     `bson:"-"`
	Shipments []*Shipment  `bson:"-"`
}

func (*Order) EntityType() string { return "order" }

type OrderLine struct {
	store.Base[string] `bson:",inline"`
	OrderID            string `bson:"order_id"`
	Quantity           int    `bson:"quantity"`
}

func (*OrderLine) EntityType() string { return "order_line" }

// Audit is reachable from an order through a restricted relation only.
type Audit struct {
	store.Base[string] `bson:",inline"`
	OrderID            string `bson:"order_id"`
}

func (*Audit) EntityType() string { return "audit" }

// Shipment is reachable from an order through a no-action relation only.
type Shipment struct {
	store.Base[string] `bson:",inline"`
	OrderID            string `bson:"order_id"`
}

func (*Shipment) EntityType() string { return "shipment" }

// Note is owned by its customer.
type Note struct {
	store.Base[string] `bson:",inline"`
	CustomerID         string `bson:"customer_id"`
}

func (*Note) EntityType() string { return "note" }

// Node is its own parent type, so nodes that are each other's parent form
// a cycle.
type Node struct {
	store.Base[string] `bson:",inline"`
	ParentID           string `bson:"parent_id"`

	Children []*Node `bson:"-"`
}

func (*Node) EntityType() string { return "node" }

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry() *store.Registry {
	r := store.NewRegistry()

	r.Define(store.Schema{Type: "customer", Table: "customers", New: func() store.Entity { return &Customer{} }})
	r.Define(store.Schema{Type: "profile", Table: "profiles", New: func() store.Entity { return &Profile{} }})
	r.Define(store.Schema{Type: "order", Table: "orders", New: func() store.Entity { return &Order{} }})
	r.Define(store.Schema{Type: "order_line", Table: "order_lines", New: func() store.Entity { return &OrderLine{} }})
	r.Define(store.Schema{Type: "audit", Table: "audits", New: func() store.Entity { return &Audit{} }})
	r.Define(store.Schema{Type: "shipment", Table: "shipments", New: func() store.Entity { return &Shipment{} }})
	r.Define(store.Schema{Type: "note", Table: "notes", New: func() store.Entity { return &Note{} }})
	r.Define(store.Schema{Type: "node", Table: "nodes", New: func() store.Entity { return &Node{} }})

	r.Relate(store.Relation{
		Name:        "orders",
		SourceType:  "customer",
		TargetType:  "order",
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		ForeignKey:  "customer_id",
		Navigation:  store.Collection(func(c *Customer) *[]*Order { return &c.Orders }),
	})
	r.Relate(store.Relation{
		Name:        "notes",
		SourceType:  "customer",
		TargetType:  "note",
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		TargetOwned: true,
		ForeignKey:  "customer_id",
		Navigation:  store.Collection(func(c *Customer) *[]*Note { return &c.Notes }),
	})
	r.Relate(store.Relation{
		Name:        "customer",
		SourceType:  "order",
		TargetType:  "customer",
		Cardinality: store.One,
		OnDelete:    store.Cascade,
		OnDependent: true,
		Navigation:  store.Reference(func(o *Order) **Customer { return &o.Customer }),
	})
	r.Relate(store.Relation{
		Name:        "lines",
		SourceType:  "order",
		TargetType:  "order_line",
		Cardinality: store.Many,
		OnDelete:    store.ClientCascade,
		ForeignKey:  "order_id",
		Navigation:  store.Collection(func(o *Order) *[]*OrderLine { return &o.Lines }),
	})
	r.Relate(store.Relation{
		Name:        "audits",
		SourceType:  "order",
		TargetType:  "audit",
		Cardinality: store.Many,
		OnDelete:    store.Restrict,
		ForeignKey:  "order_id",
		Navigation:  store.Collection(func(o *Order) *[]*Audit { return &o.Audits }),
	})
	r.Relate(store.Relation{
		Name:        "shipments",
		SourceType:  "order",
		TargetType:  "shipment",
		Cardinality: store.Many,
		OnDelete:    store.NoAction,
		ForeignKey:  "order_id",
		Navigation:  store.Collection(func(o *Order) *[]*Shipment { return &o.Shipments }),
	})
	r.Relate(store.Relation{
		Name:        "children",
		SourceType:  "node",
		TargetType:  "node",
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		ForeignKey:  "parent_id",
		Navigation:  store.Collection(func(n *Node) *[]*Node { return &n.Children }),
	})

	r.DeclareForeignKey("order", store.ForeignKey{
		PrincipalType: "customer",
		Properties:    []string{"customer_id"},
		PrincipalKey:  []string{"id"},
	})
	r.DeclareForeignKey("profile", store.ForeignKey{
		PrincipalType: "customer",
		Properties:    []string{"id"},
		PrincipalKey:  []string{"id"},
		Unique:        true,
	})

	return r
}

// --- Backend Helpers ---

// recordingBackend wraps a memstore and records the loads and commits of
// its sessions.
type recordingBackend struct {
	*memstore.Store

	loads     []string
	commits   []*store.MutationSet
	failLoad  string
	failError error
	commitErr error
}

func newRecordingBackend(reg *store.Registry) *recordingBackend {
	return &recordingBackend{Store: memstore.New(reg, nil)}
}

func (b *recordingBackend) Begin(ctx context.Context) (store.Session, error) {
	sess, err := b.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingSession{Session: sess, backend: b}, nil
}

type recordingSession struct {
	store.Session
	backend *recordingBackend
}

func (s *recordingSession) Load(ctx context.Context, source store.Entity, rel store.Relation) ([]store.Entity, error) {
	name := rel.SourceType + "." + rel.Name
	s.backend.loads = append(s.backend.loads, name)
	if name == s.backend.failLoad {
		return nil, s.backend.failError
	}
	return s.Session.Load(ctx, source, rel)
}

func (s *recordingSession) Commit(ctx context.Context, set *store.MutationSet) error {
	s.backend.commits = append(s.backend.commits, set)
	if s.backend.commitErr != nil {
		_ = s.Session.Close(ctx)
		return s.backend.commitErr
	}
	return s.Session.Commit(ctx, set)
}

var errConnection = errors.New("connection reset")

func newEngine(reg *store.Registry) *store.Engine {
	cfg := store.DefaultConfig()
	cfg.Now = func() time.Time { return testNow }
	return store.NewEngine(reg, cfg)
}

// seed inserts entities without recording the commit.
func seed(ctx context.Context, b *recordingBackend, entities ...store.Entity) error {
	sess, err := b.Store.Begin(ctx)
	if err != nil {
		return err
	}
	set := store.NewMutationSet()
	for _, e := range entities {
		e.Stamps().CreatedAt = testNow.Add(-time.Hour)
		set.Insert(e)
	}
	return sess.Commit(ctx, set)
}

func refs(entities []store.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, store.Ref(e))
	}
	return out
}

func newOrder(id, customerID string) *Order {
	o := &Order{CustomerID: customerID}
	o.ID = id
	return o
}

func newLine(id, orderID string, qty int) *OrderLine {
	l := &OrderLine{OrderID: orderID, Quantity: qty}
	l.ID = id
	return l
}

func newCustomer(id, name string) *Customer {
	c := &Customer{Name: name}
	c.ID = id
	return c
}

func newNode(id, parent string) *Node {
	n := &Node{ParentID: parent}
	n.ID = id
	return n
}
