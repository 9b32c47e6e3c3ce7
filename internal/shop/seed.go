package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/tombstone/store"
)

var catalog = []struct {
	sku   string
	price string
}{
	{"TEA-001", "4.50"},
	{"MUG-002", "12.00"},
	{"POT-003", "34.99"},
	{"CUP-004", "7.25"},
}

// Fixture is one generated customer with everything that hangs off it.
type Fixture struct {
	Customer *Customer
	Profile  *Profile
	Orders   []*Order
	Lines    []*OrderLine
	Notes    []*Note
}

// Entities returns the fixture's entities, principals before dependents.
func (f Fixture) Entities() []store.Entity {
	out := []store.Entity{f.Customer, f.Profile}
	for _, o := range f.Orders {
		out = append(out, o)
	}
	for _, l := range f.Lines {
		out = append(out, l)
	}
	for _, n := range f.Notes {
		out = append(out, n)
	}
	return out
}

// Generate builds a customer with a profile, a note and the given number of
// orders, each with one line per catalog item up to linesPerOrder. Navigation
// fields are left unloaded.
func Generate(name string, orders, linesPerOrder int) Fixture {
	c := &Customer{Name: name, Email: fmt.Sprintf("%s@example.com", name)}
	c.ID = uuid.NewString()

	p := &Profile{Bio: "Customer since the beginning."}
	p.ID = c.ID

	f := Fixture{Customer: c, Profile: p}
	for i := 0; i < orders; i++ {
		o := &Order{CustomerID: c.ID, Status: "placed"}
		o.ID = uuid.NewString()

		for j := 0; j < linesPerOrder && j < len(catalog); j++ {
			l := &OrderLine{
				OrderID:  o.ID,
				SKU:      catalog[j].sku,
				Quantity: j + 1,
				Price:    MustMoney(catalog[j].price),
			}
			l.ID = uuid.NewString()
			o.Total = o.Total.Add(l.Price.Mul(l.Quantity))
			f.Lines = append(f.Lines, l)
		}
		f.Orders = append(f.Orders, o)
	}

	n := &Note{CustomerID: c.ID, Text: "Prefers email contact."}
	n.ID = uuid.NewString()
	f.Notes = append(f.Notes, n)
	return f
}

// Seed inserts each fixture in its own commit, stamping CreatedAt with now.
func Seed(ctx context.Context, backend store.Backend, now time.Time, fixtures ...Fixture) error {
	for _, f := range fixtures {
		if err := seed(ctx, backend, now, f); err != nil {
			return fmt.Errorf("seed %s: %w", f.Customer.Name, err)
		}
	}
	return nil
}

func seed(ctx context.Context, backend store.Backend, now time.Time, f Fixture) error {
	sess, err := backend.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	set := store.NewMutationSet()
	for _, e := range f.Entities() {
		e.Stamps().CreatedAt = now
		set.Insert(e)
	}
	return sess.Commit(ctx, set)
}
