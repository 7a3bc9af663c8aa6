package controlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/storage"
)

// MySQLDB is the connection pool shared by the MySQL stores.
type MySQLDB struct {
	Config config.Config `inject:""`

	db *sqlx.DB
}

func (m *MySQLDB) Start() error {
	if m.Config == nil {
		return errors.New("missing Config injection in MySQLDB")
	}
	cfg := m.Config.GetMySQLConfig()
	if cfg.DSN == "" {
		return errors.New("MySQL.DSN must be set to keep the catalog in mysql")
	}
	db, err := sqlx.Connect("mysql", cfg.DSN)
	if err != nil {
		return sqlError("connecting to mysql", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	m.db = db
	return nil
}

func (m *MySQLDB) Stop() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *MySQLDB) exec(query string) error {
	_, err := m.db.Exec(query)
	return err
}

func realerror(err error) bool {
	return err != nil && err != sql.ErrNoRows
}

// sqlError marks failures to reach the database as storage.ErrConnection.
func sqlError(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrConnection, err)
	}
	return pkgerrors.Wrap(err, op)
}

type shardRow struct {
	ID      string `db:"id"`
	Weight  int    `db:"weight"`
	URI     string `db:"uri"`
	Options []byte `db:"options"`
}

func (r shardRow) toShard(detailed bool) (Shard, error) {
	sh := Shard{ID: r.ID, Weight: r.Weight, URI: r.URI}
	if detailed {
		var err error
		if sh.Options, err = decodeOptions(r.Options); err != nil {
			return Shard{}, err
		}
	}
	return sh, nil
}

// MySQLShardStore keeps the shard registry in the shards table.
type MySQLShardStore struct {
	DB *MySQLDB `inject:""`
}

var _ ShardStore = (*MySQLShardStore)(nil)

func (m *MySQLShardStore) Start() error {
	if m.DB == nil {
		return errors.New("missing DB injection in MySQLShardStore")
	}
	return m.SetupDatabase()
}

func (m *MySQLShardStore) Stop() error { return nil }

func (m *MySQLShardStore) SetupDatabase() error {
	err := m.DB.exec(`
		CREATE TABLE IF NOT EXISTS shards (
			id VARCHAR(255) PRIMARY KEY,
			weight INT NOT NULL,
			uri TEXT NOT NULL,
			options BLOB
	);`)
	return sqlError("creating shards table", err)
}

func (m *MySQLShardStore) List(ctx context.Context, opts ListOptions) ([]Shard, error) {
	query := "SELECT id, weight, uri, options FROM shards WHERE id > ? ORDER BY id"
	args := []any{opts.Marker}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	var rows []shardRow
	if err := m.DB.db.SelectContext(ctx, &rows, query, args...); realerror(err) {
		return nil, sqlError("listing shards", err)
	}
	out := make([]Shard, 0, len(rows))
	for _, row := range rows {
		sh, err := row.toShard(opts.Detailed)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

func (m *MySQLShardStore) Get(ctx context.Context, id string, detailed bool) (Shard, error) {
	var row shardRow
	err := m.DB.db.GetContext(ctx, &row, "SELECT id, weight, uri, options FROM shards WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Shard{}, &storage.ShardDoesNotExistError{Shard: id}
	}
	if err != nil {
		return Shard{}, sqlError("reading shard "+id, err)
	}
	return row.toShard(detailed)
}

func (m *MySQLShardStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := m.DB.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM shards WHERE id = ?", id)
	if err != nil {
		return false, sqlError("checking shard "+id, err)
	}
	return n > 0, nil
}

func (m *MySQLShardStore) Create(ctx context.Context, id string, weight int, uri string, options map[string]any) error {
	if err := validateShard(id, weight); err != nil {
		return err
	}
	encoded, err := encodeOptions(options)
	if err != nil {
		return fmt.Errorf("encoding options of shard %s: %w", id, err)
	}
	_, err = m.DB.db.ExecContext(ctx, `
		INSERT INTO shards (id, weight, uri, options) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE weight = VALUES(weight), uri = VALUES(uri), options = VALUES(options)`,
		id, weight, uri, encoded)
	return sqlError("creating shard "+id, err)
}

func (m *MySQLShardStore) Delete(ctx context.Context, id string) error {
	_, err := m.DB.db.ExecContext(ctx, "DELETE FROM shards WHERE id = ?", id)
	return sqlError("deleting shard "+id, err)
}

func (m *MySQLShardStore) Update(ctx context.Context, id string, update ShardUpdate) error {
	if err := validateShardUpdate(id, update); err != nil {
		return err
	}
	var sets []string
	var args []any
	if update.Weight != nil {
		sets = append(sets, "weight = ?")
		args = append(args, *update.Weight)
	}
	if update.URI != nil {
		sets = append(sets, "uri = ?")
		args = append(args, *update.URI)
	}
	if update.Options != nil {
		encoded, err := encodeOptions(update.Options)
		if err != nil {
			return fmt.Errorf("encoding options of shard %s: %w", id, err)
		}
		sets = append(sets, "options = ?")
		args = append(args, encoded)
	}
	args = append(args, id)

	tx, err := m.DB.db.BeginTxx(ctx, nil)
	if err != nil {
		return sqlError("updating shard "+id, err)
	}
	defer tx.Rollback()

	// affected rows is 0 when the values are unchanged, so check existence
	// under the row lock instead
	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM shards WHERE id = ? FOR UPDATE", id); err != nil {
		return sqlError("updating shard "+id, err)
	}
	if n == 0 {
		return &storage.ShardDoesNotExistError{Shard: id}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE shards SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return sqlError("updating shard "+id, err)
	}
	return sqlError("updating shard "+id, tx.Commit())
}

func (m *MySQLShardStore) DropAll(ctx context.Context) error {
	_, err := m.DB.db.ExecContext(ctx, "DELETE FROM shards")
	return sqlError("dropping shards", err)
}

type catalogueRow struct {
	Project string `db:"project"`
	Queue   string `db:"queue"`
	Shard   string `db:"shard"`
}

// MySQLCatalogueStore keeps queue placements in the catalogue table.
type MySQLCatalogueStore struct {
	DB *MySQLDB `inject:""`
}

var _ CatalogueStore = (*MySQLCatalogueStore)(nil)

func (m *MySQLCatalogueStore) Start() error {
	if m.DB == nil {
		return errors.New("missing DB injection in MySQLCatalogueStore")
	}
	return m.SetupDatabase()
}

func (m *MySQLCatalogueStore) Stop() error { return nil }

func (m *MySQLCatalogueStore) SetupDatabase() error {
	err := m.DB.exec(`
		CREATE TABLE IF NOT EXISTS catalogue (
			project VARCHAR(255) NOT NULL,
			queue VARCHAR(255) NOT NULL,
			shard VARCHAR(255) NOT NULL,
			PRIMARY KEY (project, queue)
	);`)
	return sqlError("creating catalogue table", err)
}

func (m *MySQLCatalogueStore) List(ctx context.Context, project string) ([]CatalogueEntry, error) {
	var rows []catalogueRow
	err := m.DB.db.SelectContext(ctx, &rows,
		"SELECT project, queue, shard FROM catalogue WHERE project = ? ORDER BY queue", project)
	if realerror(err) {
		return nil, sqlError("listing catalogue of project "+project, err)
	}
	out := make([]CatalogueEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, CatalogueEntry(row))
	}
	return out, nil
}

func (m *MySQLCatalogueStore) Get(ctx context.Context, project, queue string) (CatalogueEntry, error) {
	var row catalogueRow
	err := m.DB.db.GetContext(ctx, &row,
		"SELECT project, queue, shard FROM catalogue WHERE project = ? AND queue = ?", project, queue)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogueEntry{}, &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	if err != nil {
		return CatalogueEntry{}, sqlError("looking up queue "+queue, err)
	}
	return CatalogueEntry(row), nil
}

func (m *MySQLCatalogueStore) Exists(ctx context.Context, project, queue string) (bool, error) {
	var n int
	err := m.DB.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM catalogue WHERE project = ? AND queue = ?", project, queue)
	if err != nil {
		return false, sqlError("checking queue "+queue, err)
	}
	return n > 0, nil
}

func (m *MySQLCatalogueStore) Insert(ctx context.Context, project, queue, shard string) error {
	_, err := m.DB.db.ExecContext(ctx, `
		INSERT INTO catalogue (project, queue, shard) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE shard = VALUES(shard)`,
		project, queue, shard)
	return sqlError("inserting queue "+queue, err)
}

func (m *MySQLCatalogueStore) Delete(ctx context.Context, project, queue string) error {
	_, err := m.DB.db.ExecContext(ctx, "DELETE FROM catalogue WHERE project = ? AND queue = ?", project, queue)
	return sqlError("deleting queue "+queue, err)
}

func (m *MySQLCatalogueStore) Update(ctx context.Context, project, queue, shard string) error {
	tx, err := m.DB.db.BeginTxx(ctx, nil)
	if err != nil {
		return sqlError("updating queue "+queue, err)
	}
	defer tx.Rollback()

	var n int
	err = tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM catalogue WHERE project = ? AND queue = ? FOR UPDATE", project, queue)
	if err != nil {
		return sqlError("updating queue "+queue, err)
	}
	if n == 0 {
		return &storage.QueueNotMappedError{Queue: queue, Project: project}
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE catalogue SET shard = ? WHERE project = ? AND queue = ?", shard, project, queue)
	if err != nil {
		return sqlError("updating queue "+queue, err)
	}
	return sqlError("updating queue "+queue, tx.Commit())
}

func (m *MySQLCatalogueStore) DropAll(ctx context.Context) error {
	_, err := m.DB.db.ExecContext(ctx, "DELETE FROM catalogue")
	return sqlError("dropping catalogue", err)
}
