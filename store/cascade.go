package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Engine computes the soft-delete closure of root entities.
type Engine struct {
	registry *Registry
	config   Config
}

// NewEngine creates a new Engine over a registry.
func NewEngine(registry *Registry, config Config) *Engine {
	config.validate()
	return &Engine{
		registry: registry,
		config:   config,
	}
}

// Registry returns the metadata registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SoftDelete marks the roots and every entity reachable from them through
// cascading relations as deleted, loading unloaded navigations through sess,
// and returns the staged updates. Nothing is persisted; commit the returned
// set with sess.Commit.
//
// Every root is checked with CheckSafeToSoftDelete before anything is
// marked. On error the in-memory marks made by this call are reverted.
func (e *Engine) SoftDelete(ctx context.Context, sess Session, roots ...Entity) (*MutationSet, error) {
	for _, root := range roots {
		if err := e.registry.CheckSafeToSoftDelete(root); err != nil {
			return nil, err
		}
	}

	p := &pass{
		engine:  e,
		sess:    sess,
		set:     NewMutationSet(),
		visited: make(map[string]struct{}),
		now:     e.config.Now(),
	}
	for _, root := range roots {
		if err := p.run(ctx, root); err != nil {
			p.set.Discard()
			return nil, err
		}
	}

	e.config.Logger.Debug("soft delete staged",
		zap.Int("roots", len(roots)),
		zap.Int("staged", p.set.Len()),
		zap.Int("loads", p.loads),
	)
	return p.set, nil
}

// pass is the state of one SoftDelete call.
type pass struct {
	engine  *Engine
	sess    Session
	set     *MutationSet
	visited map[string]struct{}
	now     time.Time
	loads   int
}

type frame struct {
	entity Entity
	root   bool
}

// run walks the graph depth-first with an explicit stack. Children of the
// first participating relation are processed before those of the next one.
func (p *pass) run(ctx context.Context, root Entity) error {
	stack := []frame{{entity: root, root: true}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Already deleted entities were fully processed when they were
		// deleted; this also terminates cycles.
		if IsDeleted(f.entity) {
			continue
		}
		ref := Ref(f.entity)
		if _, seen := p.visited[ref]; seen {
			// A root passed by the caller may be another copy of an
			// entity an earlier root already reached.
			p.set.adoptDeleted(f.entity)
			continue
		}
		p.visited[ref] = struct{}{}

		if f.root {
			p.engine.config.RootEdit(f.entity, p.now)
		} else {
			p.engine.config.CascadeEdit(f.entity, p.now)
		}
		p.set.stageDeleted(f.entity)

		related, err := p.related(ctx, f.entity)
		if err != nil {
			return err
		}
		for i := len(related) - 1; i >= 0; i-- {
			stack = append(stack, frame{entity: related[i]})
		}
	}
	return nil
}

// related returns the entities reachable from e through participating
// relations, loading navigations that are not in memory.
func (p *pass) related(ctx context.Context, e Entity) ([]Entity, error) {
	var out []Entity

	for _, rel := range p.engine.registry.RelationsOf(e.EntityType()) {
		if !rel.Participates() || rel.TargetOwned || rel.Navigation == nil {
			continue
		}

		items, loaded := rel.Navigation.Get(e)
		if !loaded {
			var err error
			items, err = p.load(ctx, e, rel)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				continue
			}
			rel.Navigation.Set(e, items)
		}
		out = append(out, items...)
	}
	return out, nil
}

func (p *pass) load(ctx context.Context, e Entity, rel Relation) ([]Entity, error) {
	wrap := func(err error) error {
		var le *LoadError
		if errors.As(err, &le) {
			return err
		}
		return &LoadError{Relation: rel.SourceType + "." + rel.Name, Source: Ref(e), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap(err)
	}
	items, err := p.sess.Load(ctx, e, rel)
	if err != nil {
		return nil, wrap(err)
	}
	p.loads++

	if rel.Cardinality == One && len(items) > 1 {
		items = items[:1]
	}
	return items, nil
}
