package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// sqliteDSNOptions serialize writers and let readers proceed during writes.
// _txlock=immediate takes the write lock at BEGIN, so the registration check
// inside InsertEvent cannot race a concurrent writer.
const sqliteDSNOptions = "_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open creates the database file if needed and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return validationError("sqlite path is empty", "output.sqlite.path", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	dsn := fmt.Sprintf("file:%s?%s", path, sqliteDSNOptions)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "db_type", "sqlite", "path", path)
	}

	store.DB = db
	if err := performAutoMigration(db, "SQLite"); err != nil {
		return err
	}

	GetLogger().Info("database opened",
		logger.String("db_type", "sqlite"),
		logger.String("path", path))
	return nil
}

// Close closes the SQLite database
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
