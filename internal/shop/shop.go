// Package shop is the demo schema used by the command line tool and the
// end-to-end tests: customers with a profile, orders with lines, and notes
// owned by the customer.
package shop

import (
	"github.com/jacentio/tombstone/store"
)

// Customer is a root entity.
type Customer struct {
	store.Base[string] `bson:",inline"`
	Name               string `db:"name" dynamodbav:"name" bson:"name"`
	Email              string `db:"email" dynamodbav:"email" bson:"email"`

	Profile *Profile `db:"-" dynamodbav:"-" bson:"-"`
	Orders  []*Order `db:"-" dynamodbav:"-" bson:"-"`
	Notes   []*Note  `db:"-" dynamodbav:"-" bson:"-"`
}

func (*Customer) EntityType() string { return "customer" }

// Profile shares its primary key with its customer. A soft-deleted profile
// would keep the customer from ever getting a new one, so profiles cannot be
// soft-deleted on their own; they go with their customer.
type Profile struct {
	store.Base[string] `bson:",inline"`
	Bio                string `db:"bio" dynamodbav:"bio" bson:"bio"`
}

func (*Profile) EntityType() string { return "profile" }

// Order belongs to a customer.
type Order struct {
	store.Base[string] `bson:",inline"`
	CustomerID         string `db:"customer_id" dynamodbav:"customer_id" bson:"customer_id"`
	Status             string `db:"status" dynamodbav:"status" bson:"status"`
	Total              Money  `db:"total" dynamodbav:"total" bson:"total"`

	Customer *Customer    `db:"-" dynamodbav:"-" bson:"-"`
	Lines    []*OrderLine `db:"-" dynamodbav:"-" bson:"-"`
}

func (*Order) EntityType() string { return "order" }

// OrderLine belongs to an order.
type OrderLine struct {
	store.Base[string] `bson:",inline"`
	OrderID            string `db:"order_id" dynamodbav:"order_id" bson:"order_id"`
	SKU                string `db:"sku" dynamodbav:"sku" bson:"sku"`
	Quantity           int    `db:"quantity" dynamodbav:"quantity" bson:"quantity"`
	Price              Money  `db:"price" dynamodbav:"price" bson:"price"`
}

func (*OrderLine) EntityType() string { return "order_line" }

// Note is owned by its customer and has no lifecycle of its own.
type Note struct {
	store.Base[string] `bson:",inline"`
	CustomerID         string `db:"customer_id" dynamodbav:"customer_id" bson:"customer_id"`
	Text               string `db:"text" dynamodbav:"text" bson:"text"`
}

func (*Note) EntityType() string { return "note" }

// Entity type names.
const (
	TypeCustomer  = "customer"
	TypeProfile   = "profile"
	TypeOrder     = "order"
	TypeOrderLine = "order_line"
	TypeNote      = "note"
)

// NewRegistry returns the registry of the shop schema. Table names are
// prefixed with tablePrefix.
func NewRegistry(tablePrefix string) *store.Registry {
	r := store.NewRegistry()

	r.Define(store.Schema{Type: TypeCustomer, Table: tablePrefix + "customers", New: func() store.Entity { return &Customer{} }})
	r.Define(store.Schema{Type: TypeProfile, Table: tablePrefix + "profiles", New: func() store.Entity { return &Profile{} }})
	r.Define(store.Schema{Type: TypeOrder, Table: tablePrefix + "orders", New: func() store.Entity { return &Order{} }})
	r.Define(store.Schema{Type: TypeOrderLine, Table: tablePrefix + "order_lines", New: func() store.Entity { return &OrderLine{} }})
	r.Define(store.Schema{Type: TypeNote, Table: tablePrefix + "notes", New: func() store.Entity { return &Note{} }})

	r.Relate(store.Relation{
		Name:        "profile",
		SourceType:  TypeCustomer,
		TargetType:  TypeProfile,
		Cardinality: store.One,
		OnDelete:    store.Cascade,
		ForeignKey:  "id",
		Navigation:  store.Reference(func(c *Customer) **Profile { return &c.Profile }),
	})
	r.Relate(store.Relation{
		Name:        "orders",
		SourceType:  TypeCustomer,
		TargetType:  TypeOrder,
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		ForeignKey:  "customer_id",
		Navigation:  store.Collection(func(c *Customer) *[]*Order { return &c.Orders }),
	})
	r.Relate(store.Relation{
		Name:        "notes",
		SourceType:  TypeCustomer,
		TargetType:  TypeNote,
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		TargetOwned: true,
		ForeignKey:  "customer_id",
		Navigation:  store.Collection(func(c *Customer) *[]*Note { return &c.Notes }),
	})
	r.Relate(store.Relation{
		Name:        "customer",
		SourceType:  TypeOrder,
		TargetType:  TypeCustomer,
		Cardinality: store.One,
		OnDelete:    store.Cascade,
		OnDependent: true,
		Navigation:  store.Reference(func(o *Order) **Customer { return &o.Customer }),
	})
	r.Relate(store.Relation{
		Name:        "lines",
		SourceType:  TypeOrder,
		TargetType:  TypeOrderLine,
		Cardinality: store.Many,
		OnDelete:    store.Cascade,
		ForeignKey:  "order_id",
		Navigation:  store.Collection(func(o *Order) *[]*OrderLine { return &o.Lines }),
	})

	r.DeclareForeignKey(TypeProfile, store.ForeignKey{
		PrincipalType: TypeCustomer,
		Properties:    []string{"id"},
		PrincipalKey:  []string{"id"},
		Unique:        true,
	})
	r.DeclareForeignKey(TypeOrder, store.ForeignKey{
		PrincipalType: TypeCustomer,
		Properties:    []string{"customer_id"},
		PrincipalKey:  []string{"id"},
	})
	r.DeclareForeignKey(TypeOrderLine, store.ForeignKey{
		PrincipalType: TypeOrder,
		Properties:    []string{"order_id"},
		PrincipalKey:  []string{"id"},
	})
	r.DeclareForeignKey(TypeNote, store.ForeignKey{
		PrincipalType: TypeCustomer,
		Properties:    []string{"customer_id"},
		PrincipalKey:  []string{"id"},
	})

	return r
}
