/*
Package migration brings stored objects up to the current schema version of
their model type at read time.

An object's schema version lives in its reserved $VERSION payload field. When
an object is loaded with a version older than the type's declared version, the
type's migrator for that version is applied, and again for the version it
produced, until the object reaches the current version.

Model types usually declare their migrations with a Registry:

	var users = migration.NewRegistry()

	func init() {
		users.MustRegister(1, func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
			obj.Set("email", "")
			obj.SetVersion(2)
			return obj, nil
		})
	}

	var User = &migration.Model{Bucket: "users", Current: 2, Migrations: users}

A step may jump over several versions, but every step must strictly increase
the version. The engine rejects steps that do not, as well as chains longer
than its step limit and objects stored at a version newer than the model.
*/
package migration
