package migration

import (
	"context"
	"fmt"

	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/logger"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds the length of a migration chain.
const DefaultMaxSteps = 64

// ErrSchemaTooNew is returned for objects stored at a version newer than the
// model type knows about.
var ErrSchemaTooNew = &riakpersist.Error{
	Code: riakpersist.EInvalid,
	Msg:  "stored schema version is newer than the model version",
}

// Engine runs migration chains.
type Engine struct {
	// MaxSteps is the longest chain the engine runs before giving up.
	// Zero means DefaultMaxSteps.
	MaxSteps int
	Logger   *zap.Logger
}

// NewEngine returns an engine with the default step limit.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		MaxSteps: DefaultMaxSteps,
		Logger:   logger,
	}
}

// Migrate applies the migrators of typ to obj until it reaches typ's
// version. It returns a nil object when obj, or any object produced along
// the way, is absent. The number of steps applied is returned with it.
//
// Errors returned by the type's migrators are passed through unchanged.
// Steps are logged to the logger of ctx, if any, else to the engine's.
func (e *Engine) Migrate(ctx context.Context, mgr riakpersist.Manager, typ riakpersist.ModelType, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, int, error) {
	maxSteps := e.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	log := logger.FromContextOr(ctx, e.Logger)
	if log == nil {
		log = zap.NewNop()
	}

	target := typ.Version()
	for steps := 0; ; steps++ {
		if !obj.Exists() {
			return nil, steps, nil
		}

		version, err := obj.Version()
		if err != nil {
			return nil, steps, err
		}
		if version == target {
			return obj, steps, nil
		}
		if version > target {
			return nil, steps, &riakpersist.Error{
				Code: riakpersist.EInvalid,
				Op:   "migration/Engine.Migrate",
				Msg:  fmt.Sprintf("%s/%s is at version %d, model is at %d", obj.Bucket, obj.Key, version, target),
				Err:  ErrSchemaTooNew,
			}
		}
		if steps >= maxSteps {
			return nil, steps, &riakpersist.Error{
				Code: riakpersist.EInternal,
				Op:   "migration/Engine.Migrate",
				Msg:  fmt.Sprintf("%s/%s still at version %d after %d migration steps", obj.Bucket, obj.Key, version, steps),
			}
		}

		m, err := typ.NewMigrator(mgr, version)
		if err != nil {
			return nil, steps, err
		}
		next, err := m.Migrate(ctx, obj)
		if err != nil {
			return nil, steps, err
		}
		if next.Exists() {
			if next.Bucket != obj.Bucket || next.Key != obj.Key {
				return nil, steps, &riakpersist.Error{
					Code: riakpersist.EInvalid,
					Op:   "migration/Engine.Migrate",
					Msg:  fmt.Sprintf("migration from version %d moved %s/%s to %s/%s", version, obj.Bucket, obj.Key, next.Bucket, next.Key),
				}
			}
			nextVersion, err := next.Version()
			if err != nil {
				return nil, steps, err
			}
			if nextVersion <= version {
				return nil, steps, &riakpersist.Error{
					Code: riakpersist.EInvalid,
					Op:   "migration/Engine.Migrate",
					Msg:  fmt.Sprintf("migration of %s/%s from version %d produced version %d", obj.Bucket, obj.Key, version, nextVersion),
				}
			}
			log.Debug("Migrated stored object",
				zap.String("bucket", obj.Bucket),
				zap.String("key", obj.Key),
				zap.Int("from_version", version),
				zap.Int("to_version", nextVersion))
		}
		obj = next
	}
}
