// Package database opens the SQLite file behind the command journal and
// keeps its schema current.
//
// Migrations are plain "{version}_{name}.up.sql" files read from any fs.FS,
// normally the embedded migrations.FS. Each one runs in its own transaction
// together with its schema_migrations row, so a failed file leaves nothing
// half applied. There is no down path: the journal is append-only history
// and is safe to delete.
//
//	db, err := database.Open(database.Config{Path: "./data/bridge.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx, migrations.FS)
package database
