package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/maendeleo/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(conf.Database.Engine, u.String())
}

func Open(conf *core.Config) (*sqlx.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// TxDB adapts *sqlx.DB to core.DB.
type TxDB struct {
	*sqlx.DB
}

func (db TxDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	return db.DB.DB.BeginTx(ctx, opts)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	rows, err := db.Query(fmt.Sprintf("SELECT true FROM pg_roles WHERE rolname='%s'", conf.Database.User))
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err = rows.Scan(&exists); err != nil {
			return errors.Wrap(err, "checking app user")
		}
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	var exists bool
	rows, err := db.Query(fmt.Sprintf("SELECT true FROM pg_database WHERE datname='%s'", conf.Database.Name))
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err = rows.Scan(&exists); err != nil {
			return errors.Wrap(err, "checking DB")
		}
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist bootstraps the app user and database on first run.
func CreateIfNotExist(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	defer func() { _ = db.Close() }()

	// create DB as app user
	db, err = open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	if err = createDB(db, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	defer func() { _ = db.Close() }()
	return nil
}

func Migrate(db *sqlx.DB) error {
	return errors.Wrap(MigrationCommand(db, "up"), "migrating database")
}

// MigrationCommand runs an arbitrary goose command (up, down, status, ...)
// against the embedded migrations.
func MigrationCommand(db *sqlx.DB, command string, args ...string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return goose.Run(command, db.DB, "migrations", args...)
}

// SeedDemoCatalog inserts a small published course/lesson/material set for
// local development. Fixed ids keep the operation re-runnable.
func SeedDemoCatalog(db *sqlx.DB) error {
	stmts := []string{
		`INSERT INTO course (id, title, is_published) VALUES
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5101', 'Go Basics', true)
			ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO lesson (id, course_id, title, is_published, position) VALUES
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5201', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5101', 'Getting Started', true, 1),
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5202', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5101', 'Concurrency', true, 2)
			ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO material (id, lesson_id, title, is_published, allows_manual_progress, position) VALUES
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5301', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5201', 'Installing Go', true, true, 1),
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5302', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5201', 'Hello World', true, true, 2),
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5303', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5202', 'Goroutines', true, true, 1),
			('6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5304', '6a64f0d8-0a11-4b6e-9a43-0a1f6f6d5202', 'Channels Video', true, false, 2)
			ON CONFLICT (id) DO NOTHING`,
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "seeding catalog")
		}
	}
	return errors.Wrap(tx.Commit(), "committing seed")
}
