package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/riakpersist/riakpersist"
)

// Step migrates an object stored at the version it is registered for. It
// returns the migrated object, which must carry a higher version.
type Step func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error)

// NoModification is a step for versions whose payload needs no change. It
// only advances the version by one.
func NoModification(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
	v, err := obj.Version()
	if err != nil {
		return nil, err
	}
	obj.SetVersion(v + 1)
	return obj, nil
}

// Registry holds the migration steps of one model type, keyed by the
// version they migrate from.
type Registry struct {
	mu    sync.RWMutex
	steps map[int]Step
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[int]Step)}
}

// Register adds the step migrating objects stored at version from.
func (r *Registry) Register(from int, step Step) error {
	if from < 0 {
		return &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "migration/Registry.Register",
			Msg:  fmt.Sprintf("invalid source version %d", from),
		}
	}
	if step == nil {
		return &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "migration/Registry.Register",
			Msg:  "nil migration step",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[from]; ok {
		return &riakpersist.Error{
			Code: riakpersist.EConflict,
			Op:   "migration/Registry.Register",
			Msg:  fmt.Sprintf("migration from version %d already registered", from),
		}
	}
	r.steps[from] = step
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(from int, step Step) {
	if err := r.Register(from, step); err != nil {
		panic(err)
	}
}

// NewMigrator returns a migrator running the step registered for version
// from.
func (r *Registry) NewMigrator(mgr riakpersist.Manager, from int) (riakpersist.Migrator, error) {
	r.mu.RLock()
	step, ok := r.steps[from]
	r.mu.RUnlock()
	if !ok {
		return nil, &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "migration/Registry.NewMigrator",
			Msg:  fmt.Sprintf("no migration from version %d", from),
		}
	}
	return riakpersist.MigratorFunc(func(ctx context.Context, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
		return step(ctx, mgr, obj)
	}), nil
}

// Model is a ModelType backed by a Registry.
type Model struct {
	Bucket     string
	Current    int
	Migrations *Registry
}

var _ riakpersist.ModelType = (*Model)(nil)

// BucketName implements riakpersist.ModelType.
func (m *Model) BucketName() string { return m.Bucket }

// Version implements riakpersist.ModelType.
func (m *Model) Version() int { return m.Current }

// NewMigrator implements riakpersist.ModelType.
func (m *Model) NewMigrator(mgr riakpersist.Manager, from int) (riakpersist.Migrator, error) {
	if m.Migrations == nil {
		return nil, &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "migration/Model.NewMigrator",
			Msg:  fmt.Sprintf("model %q has no migrations", m.Bucket),
		}
	}
	return m.Migrations.NewMigrator(mgr, from)
}
