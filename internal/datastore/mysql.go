package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// mysqlDSN builds the connection string. Times are stored in UTC and
// clientFoundRows makes no-op updates count as matched rows.
func mysqlDSN(s conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Output.MySQL

	db, err := gorm.Open(mysql.Open(mysqlDSN(cfg)), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical,
			"db_type", "mysql",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Database)
	}

	store.DB = db
	if err := performAutoMigration(db, "MySQL"); err != nil {
		return err
	}

	GetLogger().Info("database opened",
		logger.String("db_type", "mysql"),
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return nil
}

// Close MySQL database connections
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
