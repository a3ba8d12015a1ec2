// Package export persists snapshots of the federated node set to SQLite or
// PostgreSQL.
package export

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/nicholasyager/dbt-loom/internal/dag"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Errors returned when reading exports back.
var (
	ErrNoExports      = errors.New("no exports found")
	ErrExportNotFound = errors.New("export not found")
)

// LatestExport selects the newest export in Snapshot.
const LatestExport = "latest"

// Export describes one saved snapshot.
type Export struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Projects  []string  `json:"projects"`
	NodeCount int       `json:"node_count"`
}

// Store writes and reads exports.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	logger *slog.Logger
}

// Open connects to the database for driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported export driver %q", driver)
	}

	logger.Debug("opening export store", slog.String("driver", driver))

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	return newStore(db, driver, logger), nil
}

func newStore(db *sql.DB, driver string, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate runs all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(s.driver); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders to $N for PostgreSQL.
func (s *Store) bind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const insertNode = `INSERT INTO nodes (
	export_id, unique_id, name, package_name, resource_type, schema_name,
	database_name, relation_name, identifier, version, latest_version,
	deprecation_date, access, group_name, generated_at, depends_on, enabled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save writes nodes as a new export in a single transaction.
func (s *Store) Save(ctx context.Context, nodes map[string]core.Node, projects []string) (Export, error) {
	exp := Export{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Projects:  slices.Sorted(slices.Values(projects)),
		NodeCount: len(nodes),
	}
	projectsJSON, err := json.Marshal(exp.Projects)
	if err != nil {
		return Export{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Export{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.bind(`INSERT INTO exports (id, created_at, projects, node_count) VALUES (?, ?, ?, ?)`),
		exp.ID, formatTime(exp.CreatedAt), string(projectsJSON), exp.NodeCount,
	); err != nil {
		return Export{}, fmt.Errorf("failed to insert export: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.bind(insertNode))
	if err != nil {
		return Export{}, fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range s.insertOrder(nodes) {
		n := nodes[id]
		deps, err := json.Marshal(n.DependsOn)
		if err != nil {
			return Export{}, err
		}
		var deprecation any
		if n.DeprecationDate != nil {
			deprecation = formatTime(*n.DeprecationDate)
		}
		if _, err := stmt.ExecContext(ctx,
			exp.ID, id, n.Name, n.PackageName, string(n.ResourceType), n.SchemaName,
			nullable(n.Database), nullable(n.RelationName), n.Identifier(),
			nullable(n.Version), nullable(n.LatestVersion), deprecation,
			string(n.Access), nullable(n.Group), formatTime(n.GeneratedAt), string(deps), n.Enabled,
		); err != nil {
			return Export{}, fmt.Errorf("failed to insert node %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Export{}, fmt.Errorf("failed to commit export: %w", err)
	}

	s.logger.Info("export saved", "id", exp.ID, "nodes", exp.NodeCount)
	return exp, nil
}

// insertOrder returns dependencies before their dependents, or plain id
// order when the nodes form a cycle.
func (s *Store) insertOrder(nodes map[string]core.Node) []string {
	order, err := dag.Build(nodes).TopologicalSort()
	if err != nil {
		s.logger.Warn("exporting nodes in id order", "error", err)
		return slices.Sorted(maps.Keys(nodes))
	}
	return order
}

// Exports lists saved exports, newest first.
func (s *Store) Exports(ctx context.Context) ([]Export, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, projects, node_count FROM exports ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Export
	for rows.Next() {
		var (
			exp               Export
			created, projects string
		)
		if err := rows.Scan(&exp.ID, &created, &projects, &exp.NodeCount); err != nil {
			return nil, err
		}
		if exp.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(projects), &exp.Projects); err != nil {
			return nil, fmt.Errorf("export %s: invalid projects: %w", exp.ID, err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// Latest returns the newest export.
func (s *Store) Latest(ctx context.Context) (Export, error) {
	exports, err := s.Exports(ctx)
	if err != nil {
		return Export{}, err
	}
	if len(exports) == 0 {
		return Export{}, ErrNoExports
	}
	return exports[0], nil
}

// Nodes returns the nodes of an export keyed by unique id.
func (s *Store) Nodes(ctx context.Context, exportID string) (map[string]core.Node, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT
		unique_id, name, package_name, resource_type, schema_name, database_name,
		relation_name, version, latest_version, deprecation_date, access,
		group_name, generated_at, depends_on, enabled
	FROM nodes WHERE export_id = ? ORDER BY unique_id`), exportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]core.Node)
	for rows.Next() {
		var (
			n                                          core.Node
			rt, access, generated, deps                string
			database, relation, version, latest, group sql.NullString
			deprecation                                sql.NullString
		)
		if err := rows.Scan(&n.UniqueID, &n.Name, &n.PackageName, &rt, &n.SchemaName,
			&database, &relation, &version, &latest, &deprecation, &access,
			&group, &generated, &deps, &n.Enabled); err != nil {
			return nil, err
		}

		n.ResourceType = core.ResourceType(rt)
		n.Access = core.AccessType(access)
		n.Database, n.RelationName = database.String, relation.String
		n.Version, n.LatestVersion, n.Group = version.String, latest.String, group.String

		if n.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, err
		}
		if deprecation.Valid {
			t, err := parseTime(deprecation.String)
			if err != nil {
				return nil, err
			}
			n.DeprecationDate = &t
		}
		if err := json.Unmarshal([]byte(deps), &n.DependsOn); err != nil {
			return nil, fmt.Errorf("node %s: invalid depends_on: %w", n.UniqueID, err)
		}
		out[n.UniqueID] = n
	}
	return out, rows.Err()
}

// Snapshot is a saved export loaded back into memory. It serves the same
// read API as a live federation.
type Snapshot struct {
	Export Export
	nodes  map[string]core.Node
}

// Nodes returns a copy of the exported nodes.
func (s *Snapshot) Nodes() map[string]core.Node {
	return maps.Clone(s.nodes)
}

// Node returns one exported node.
func (s *Snapshot) Node(id string) (core.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Projects returns the projects recorded with the export.
func (s *Snapshot) Projects() []string {
	return slices.Clone(s.Export.Projects)
}

// Snapshot loads export id with its nodes. An empty id or LatestExport
// selects the newest export.
func (s *Store) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	var exp Export
	if id == "" || id == LatestExport {
		latest, err := s.Latest(ctx)
		if err != nil {
			return nil, err
		}
		exp = latest
	} else {
		exports, err := s.Exports(ctx)
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(exports, func(e Export) bool { return e.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrExportNotFound, id)
		}
		exp = exports[i]
	}

	nodes, err := s.Nodes(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("loaded export", "id", exp.ID, "nodes", len(nodes))
	return &Snapshot{Export: exp, nodes: nodes}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
