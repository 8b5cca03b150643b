/*
Package sqlite provides a SQLite-backed implementation of the storage collaborator.

PURPOSE:
  Implements generic.ReadWriteStore on SQLite: farm structure, the
  time-series records reports are computed from, and the mutation hooks
  that keep the report cache consistent.

INTERFACES IMPLEMENTED:
  generic.Store:       Range aggregates, raw records, live bird counts
  generic.Writer:      Farm/shed/flock/party saves, record appends
  generic.EventSource: Mutation hooks (published after commit)

KEY TABLES:
  farms, sheds, flocks, parties: Farm structure and counterparties
  production:                    Egg collections by grade
  feed_issues, feed_purchases:   Feed movement and cost
  ledger_entries:                Party postings in two currencies
  mortality:                     Birds lost per flock per day

INDEXES:
  Every time-series table is indexed on (farm_id, date) or its scope
  equivalent. RangeAggregate is one GROUP BY date query on those indexes.

DATES AND MONEY:
  Dates are stored as YYYY-MM-DD text so range predicates compare
  lexically. Decimal amounts are stored as text and parsed with
  shopspring/decimal; they never pass through float64.

WAL MODE:
  File databases are opened with WAL so readers don't block the writer.
  ":memory:" is pinned to one connection, since every new connection to
  ":memory:" would see a fresh empty database.

USAGE:
  store, err := sqlite.New("./data/poultry.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/poultry-reports/generic"
)

// Store implements generic.ReadWriteStore using SQLite.
type Store struct {
	generic.MutationHooks

	db *sql.DB
	mu sync.RWMutex
}

var _ generic.ReadWriteStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS farms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sheds (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL REFERENCES farms(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS flocks (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		shed_id TEXT NOT NULL DEFAULT '',
		breed TEXT NOT NULL DEFAULT '',
		initial_count INTEGER NOT NULL,
		placed_on TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS parties (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT ''
	);

	-- Egg collections by grade
	CREATE TABLE IF NOT EXISTS production (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		shed_id TEXT NOT NULL DEFAULT '',
		flock_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		small INTEGER NOT NULL DEFAULT 0,
		medium INTEGER NOT NULL DEFAULT 0,
		large INTEGER NOT NULL DEFAULT 0,
		broken INTEGER NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_production_farm_date ON production(farm_id, date);
	CREATE INDEX IF NOT EXISTS idx_production_flock_date ON production(flock_id, date);

	CREATE TABLE IF NOT EXISTS feed_issues (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		shed_id TEXT NOT NULL,
		flock_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		feed_type TEXT NOT NULL DEFAULT '',
		quantity_kg REAL NOT NULL,
		cost_primary TEXT NOT NULL,
		cost_secondary TEXT NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feed_issues_farm_date ON feed_issues(farm_id, date);
	CREATE INDEX IF NOT EXISTS idx_feed_issues_flock_date ON feed_issues(flock_id, date);

	CREATE TABLE IF NOT EXISTS feed_purchases (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL,
		date TEXT NOT NULL,
		feed_type TEXT NOT NULL DEFAULT '',
		quantity_kg TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feed_purchases_farm_date ON feed_purchases(farm_id, date);

	-- Party postings; seq preserves insertion order for stable statements
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		party_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		debit_primary TEXT NOT NULL,
		debit_secondary TEXT NOT NULL,
		credit_primary TEXT NOT NULL,
		credit_secondary TEXT NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_party ON ledger_entries(party_id, seq);

	CREATE TABLE IF NOT EXISTS mortality (
		id TEXT PRIMARY KEY,
		farm_id TEXT NOT NULL DEFAULT '',
		flock_id TEXT NOT NULL,
		date TEXT NOT NULL,
		count INTEGER NOT NULL,
		cause TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mortality_flock_date ON mortality(flock_id, date);
	CREATE INDEX IF NOT EXISTS idx_mortality_farm_date ON mortality(farm_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READ SIDE (generic.Store interface)
// =============================================================================

// scopeFilter appends scope predicates. Tables without a shed column pass
// hasShed=false and ignore ShedID.
func scopeFilter(scope generic.Scope, hasShed bool) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if scope.FarmID != "" {
		clauses = append(clauses, "farm_id = ?")
		args = append(args, string(scope.FarmID))
	}
	if hasShed && scope.ShedID != "" {
		clauses = append(clauses, "shed_id = ?")
		args = append(args, string(scope.ShedID))
	}
	if scope.FlockID != "" {
		clauses = append(clauses, "flock_id = ?")
		args = append(args, string(scope.FlockID))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

var aggregateSources = map[generic.Metric]struct {
	table   string
	expr    string
	hasShed bool
}{
	generic.MetricTotalEggs:  {"production", "small + medium + large + broken", true},
	generic.MetricUsableEggs: {"production", "small + medium + large", true},
	generic.MetricFeedKg:     {"feed_issues", "quantity_kg", true},
	generic.MetricMortality:  {"mortality", "count", false},
}

// RangeAggregate sums the metric per day in one grouped query.
func (s *Store) RangeAggregate(ctx context.Context, metric generic.Metric, scope generic.Scope, from, to generic.TimePoint) ([]generic.DatedValue, error) {
	src, ok := aggregateSources[metric]
	if !ok {
		return nil, fmt.Errorf("%w %q", generic.ErrUnknownMetric, metric)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := scopeFilter(scope, src.hasShed)
	query := `SELECT date, SUM(` + src.expr + `) FROM ` + src.table + `
		WHERE date >= ? AND date <= ?` + filter + `
		GROUP BY date
		ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query, append([]any{from.Key(), to.Key()}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", metric, err)
	}
	defer rows.Close()

	var result []generic.DatedValue
	for rows.Next() {
		var (
			date  string
			value float64
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		result = append(result, generic.DatedValue{Date: parseDate(date), Value: value})
	}
	return result, rows.Err()
}

func (s *Store) ProductionRecords(ctx context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.ProductionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := scopeFilter(scope, true)
	query := `
		SELECT id, farm_id, shed_id, flock_id, date, small, medium, large, broken
		FROM production
		WHERE date >= ? AND date <= ?` + filter + `
		ORDER BY date ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, append([]any{from.Key(), to.Key()}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production: %w", err)
	}
	defer rows.Close()

	var result []generic.ProductionRecord
	for rows.Next() {
		var (
			r    generic.ProductionRecord
			date string
		)
		if err := rows.Scan(&r.ID, &r.FarmID, &r.ShedID, &r.FlockID, &date, &r.Small, &r.Medium, &r.Large, &r.Broken); err != nil {
			return nil, fmt.Errorf("failed to scan production: %w", err)
		}
		r.Date = parseDate(date)
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) FeedIssues(ctx context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.FeedIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := scopeFilter(scope, true)
	query := `
		SELECT id, farm_id, shed_id, flock_id, date, feed_type, quantity_kg, cost_primary, cost_secondary
		FROM feed_issues
		WHERE date >= ? AND date <= ?` + filter + `
		ORDER BY date ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, append([]any{from.Key(), to.Key()}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed issues: %w", err)
	}
	defer rows.Close()

	var result []generic.FeedIssue
	for rows.Next() {
		var (
			f                  generic.FeedIssue
			date, cost1, cost2 string
		)
		if err := rows.Scan(&f.ID, &f.FarmID, &f.ShedID, &f.FlockID, &date, &f.FeedType, &f.QuantityKg, &cost1, &cost2); err != nil {
			return nil, fmt.Errorf("failed to scan feed issue: %w", err)
		}
		f.Date = parseDate(date)
		f.Cost = parseMoney(cost1, cost2)
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) FeedPurchases(ctx context.Context, farmID generic.FarmID, from, to generic.TimePoint) ([]generic.FeedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, farm_id, date, feed_type, quantity_kg, unit_cost
		FROM feed_purchases
		WHERE farm_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, seq ASC
	`, string(farmID), from.Key(), to.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to query feed purchases: %w", err)
	}
	defer rows.Close()

	var result []generic.FeedPurchase
	for rows.Next() {
		var (
			p                   generic.FeedPurchase
			date, qty, unitCost string
		)
		if err := rows.Scan(&p.ID, &p.FarmID, &date, &p.FeedType, &qty, &unitCost); err != nil {
			return nil, fmt.Errorf("failed to scan feed purchase: %w", err)
		}
		p.Date = parseDate(date)
		p.QuantityKg = generic.MustParseDecimal(qty)
		p.UnitCost = generic.MustParseDecimal(unitCost)
		result = append(result, p)
	}
	return result, rows.Err()
}

// LedgerEntries returns postings in insertion order; statements sort them.
func (s *Store) LedgerEntries(ctx context.Context, partyID generic.PartyID) ([]generic.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, party_id, date, description,
		       debit_primary, debit_secondary, credit_primary, credit_secondary
		FROM ledger_entries
		WHERE party_id = ?
		ORDER BY seq ASC
	`, string(partyID))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var result []generic.LedgerEntry
	for rows.Next() {
		var (
			e              generic.LedgerEntry
			date           string
			d1, d2, c1, c2 string
		)
		if err := rows.Scan(&e.ID, &e.PartyID, &date, &e.Description, &d1, &d2, &c1, &c2); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Date = parseDate(date)
		e.Debit = parseMoney(d1, d2)
		e.Credit = parseMoney(c1, c2)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) MortalityEvents(ctx context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.MortalityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := scopeFilter(scope, false)
	query := `
		SELECT id, farm_id, flock_id, date, count, cause
		FROM mortality
		WHERE date >= ? AND date <= ?` + filter + `
		ORDER BY date ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, append([]any{from.Key(), to.Key()}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mortality: %w", err)
	}
	defer rows.Close()

	var result []generic.MortalityEvent
	for rows.Next() {
		var (
			m    generic.MortalityEvent
			date string
		)
		if err := rows.Scan(&m.ID, &m.FarmID, &m.FlockID, &date, &m.Count, &m.Cause); err != nil {
			return nil, fmt.Errorf("failed to scan mortality: %w", err)
		}
		m.Date = parseDate(date)
		result = append(result, m)
	}
	return result, rows.Err()
}

// LiveBirdCount is initial_count minus deaths up to and including asOf,
// zero before placement and never negative.
func (s *Store) LiveBirdCount(ctx context.Context, flockID generic.FlockID, asOf generic.TimePoint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		initial  int64
		placedOn string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT initial_count, placed_on FROM flocks WHERE id = ?", string(flockID),
	).Scan(&initial, &placedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, generic.ErrFlockNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get flock: %w", err)
	}
	if asOf.Key() < placedOn {
		return 0, nil
	}

	var deaths int64
	err = s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(count), 0) FROM mortality WHERE flock_id = ? AND date <= ?",
		string(flockID), asOf.Key(),
	).Scan(&deaths)
	if err != nil {
		return 0, fmt.Errorf("failed to sum mortality: %w", err)
	}

	return max(0, initial-deaths), nil
}

func (s *Store) GetFlock(ctx context.Context, flockID generic.FlockID) (*generic.Flock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		f        generic.Flock
		placedOn string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, farm_id, shed_id, breed, initial_count, placed_on FROM flocks WHERE id = ?",
		string(flockID),
	).Scan(&f.ID, &f.FarmID, &f.ShedID, &f.Breed, &f.InitialCount, &placedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrFlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flock: %w", err)
	}
	f.PlacedOn = parseDate(placedOn)
	return &f, nil
}

// ListFarms returns all farms ordered by name.
func (s *Store) ListFarms(ctx context.Context) ([]generic.Farm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, location FROM farms ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list farms: %w", err)
	}
	defer rows.Close()

	farms := []generic.Farm{}
	for rows.Next() {
		var f generic.Farm
		if err := rows.Scan(&f.ID, &f.Name, &f.Location); err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

// =============================================================================
// WRITE SIDE (generic.Writer interface)
// =============================================================================
//
// Every write commits first and publishes its MutationEvent after the lock
// is released, so listeners may read the store.

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// upsert runs an INSERT ... ON CONFLICT and reports whether the row existed.
func (s *Store) upsert(ctx context.Context, table, id, query string, args ...any) (generic.Operation, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&exists); err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", err
	}
	if exists > 0 {
		return generic.OpUpdate, nil
	}
	return generic.OpCreate, nil
}

func (s *Store) SaveFarm(ctx context.Context, f generic.Farm) (generic.Farm, error) {
	if err := generic.ValidateFarm(f); err != nil {
		return generic.Farm{}, err
	}
	f.ID = generic.FarmID(newID(string(f.ID)))

	s.mu.Lock()
	op, err := s.upsert(ctx, "farms", string(f.ID), `
		INSERT INTO farms (id, name, location, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, location = excluded.location
	`, string(f.ID), f.Name, f.Location, time.Now().UTC().Format(time.RFC3339))
	s.mu.Unlock()
	if err != nil {
		return generic.Farm{}, fmt.Errorf("failed to save farm: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFarm, Op: op, ID: string(f.ID), FarmID: f.ID})
	return f, nil
}

func (s *Store) DeleteFarm(ctx context.Context, id generic.FarmID) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM farms WHERE id = ?", string(id))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete farm: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrFarmNotFound
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFarm, Op: generic.OpDelete, ID: string(id), FarmID: id})
	return nil
}

func (s *Store) SaveShed(ctx context.Context, sh generic.Shed) (generic.Shed, error) {
	sh.ID = generic.ShedID(newID(string(sh.ID)))

	s.mu.Lock()
	var farms int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM farms WHERE id = ?", string(sh.FarmID)).Scan(&farms)
	if err == nil && farms == 0 {
		s.mu.Unlock()
		return generic.Shed{}, generic.ErrFarmNotFound
	}
	var op generic.Operation
	if err == nil {
		op, err = s.upsert(ctx, "sheds", string(sh.ID), `
			INSERT INTO sheds (id, farm_id, name, capacity) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET farm_id = excluded.farm_id, name = excluded.name, capacity = excluded.capacity
		`, string(sh.ID), string(sh.FarmID), sh.Name, sh.Capacity)
	}
	s.mu.Unlock()
	if err != nil {
		return generic.Shed{}, fmt.Errorf("failed to save shed: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityShed, Op: op, ID: string(sh.ID), FarmID: sh.FarmID})
	return sh, nil
}

func (s *Store) SaveFlock(ctx context.Context, f generic.Flock) (generic.Flock, error) {
	if err := generic.ValidateFlock(f); err != nil {
		return generic.Flock{}, err
	}
	f.ID = generic.FlockID(newID(string(f.ID)))

	s.mu.Lock()
	op, err := s.upsert(ctx, "flocks", string(f.ID), `
		INSERT INTO flocks (id, farm_id, shed_id, breed, initial_count, placed_on) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			farm_id = excluded.farm_id,
			shed_id = excluded.shed_id,
			breed = excluded.breed,
			initial_count = excluded.initial_count,
			placed_on = excluded.placed_on
	`, string(f.ID), string(f.FarmID), string(f.ShedID), f.Breed, f.InitialCount, f.PlacedOn.Key())
	s.mu.Unlock()
	if err != nil {
		return generic.Flock{}, fmt.Errorf("failed to save flock: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFlock, Op: op, ID: string(f.ID), FarmID: f.FarmID})
	return f, nil
}

func (s *Store) SaveParty(ctx context.Context, p generic.Party) (generic.Party, error) {
	p.ID = generic.PartyID(newID(string(p.ID)))

	s.mu.Lock()
	op, err := s.upsert(ctx, "parties", string(p.ID), `
		INSERT INTO parties (id, name, kind) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind
	`, string(p.ID), p.Name, p.Kind)
	s.mu.Unlock()
	if err != nil {
		return generic.Party{}, fmt.Errorf("failed to save party: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityParty, Op: op, ID: string(p.ID)})
	return p, nil
}

// appendRow inserts a time-series row with the next seq of its table.
func (s *Store) appendRow(ctx context.Context, table string, columns []string, args ...any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := `INSERT INTO ` + table + ` (` + strings.Join(columns, ", ") + `, seq)
		VALUES (` + placeholders + `, (SELECT COALESCE(MAX(seq), 0) + 1 FROM ` + table + `))`
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) AddProduction(ctx context.Context, r generic.ProductionRecord) (generic.ProductionRecord, error) {
	if err := generic.ValidateProduction(r); err != nil {
		return generic.ProductionRecord{}, err
	}
	r.ID = newID(r.ID)

	s.mu.Lock()
	err := s.appendRow(ctx, "production",
		[]string{"id", "farm_id", "shed_id", "flock_id", "date", "small", "medium", "large", "broken"},
		r.ID, string(r.FarmID), string(r.ShedID), string(r.FlockID), r.Date.Key(), r.Small, r.Medium, r.Large, r.Broken)
	s.mu.Unlock()
	if err != nil {
		return generic.ProductionRecord{}, fmt.Errorf("failed to add production: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityProduction, Op: generic.OpCreate, ID: r.ID, FarmID: r.FarmID})
	return r, nil
}

func (s *Store) AddFeedIssue(ctx context.Context, f generic.FeedIssue) (generic.FeedIssue, error) {
	if err := generic.ValidateFeedIssue(f); err != nil {
		return generic.FeedIssue{}, err
	}
	f.ID = newID(f.ID)

	s.mu.Lock()
	err := s.appendRow(ctx, "feed_issues",
		[]string{"id", "farm_id", "shed_id", "flock_id", "date", "feed_type", "quantity_kg", "cost_primary", "cost_secondary"},
		f.ID, string(f.FarmID), string(f.ShedID), string(f.FlockID), f.Date.Key(), f.FeedType, f.QuantityKg,
		f.Cost.Primary.String(), f.Cost.Secondary.String())
	s.mu.Unlock()
	if err != nil {
		return generic.FeedIssue{}, fmt.Errorf("failed to add feed issue: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFeedIssue, Op: generic.OpCreate, ID: f.ID, FarmID: f.FarmID})
	return f, nil
}

func (s *Store) AddFeedPurchase(ctx context.Context, p generic.FeedPurchase) (generic.FeedPurchase, error) {
	if err := generic.ValidateFeedPurchase(p); err != nil {
		return generic.FeedPurchase{}, err
	}
	p.ID = newID(p.ID)

	s.mu.Lock()
	err := s.appendRow(ctx, "feed_purchases",
		[]string{"id", "farm_id", "date", "feed_type", "quantity_kg", "unit_cost"},
		p.ID, string(p.FarmID), p.Date.Key(), p.FeedType, p.QuantityKg.String(), p.UnitCost.String())
	s.mu.Unlock()
	if err != nil {
		return generic.FeedPurchase{}, fmt.Errorf("failed to add feed purchase: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFeedPurchase, Op: generic.OpCreate, ID: p.ID, FarmID: p.FarmID})
	return p, nil
}

func (s *Store) AddLedgerEntry(ctx context.Context, e generic.LedgerEntry) (generic.LedgerEntry, error) {
	if err := generic.ValidateLedgerEntry(e); err != nil {
		return generic.LedgerEntry{}, err
	}
	e.ID = newID(e.ID)

	s.mu.Lock()
	var parties int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parties WHERE id = ?", string(e.PartyID)).Scan(&parties)
	if err == nil && parties == 0 {
		s.mu.Unlock()
		return generic.LedgerEntry{}, generic.ErrPartyNotFound
	}
	if err == nil {
		err = s.appendRow(ctx, "ledger_entries",
			[]string{"id", "party_id", "date", "description", "debit_primary", "debit_secondary", "credit_primary", "credit_secondary"},
			e.ID, string(e.PartyID), e.Date.Key(), e.Description,
			e.Debit.Primary.String(), e.Debit.Secondary.String(), e.Credit.Primary.String(), e.Credit.Secondary.String())
	}
	s.mu.Unlock()
	if err != nil {
		return generic.LedgerEntry{}, fmt.Errorf("failed to add ledger entry: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityLedgerEntry, Op: generic.OpCreate, ID: e.ID})
	return e, nil
}

// AddMortality fills FarmID from the flock when the caller leaves it empty.
func (s *Store) AddMortality(ctx context.Context, m generic.MortalityEvent) (generic.MortalityEvent, error) {
	if err := generic.ValidateMortality(m); err != nil {
		return generic.MortalityEvent{}, err
	}
	m.ID = newID(m.ID)

	s.mu.Lock()
	var err error
	if m.FarmID == "" {
		var farmID string
		err = s.db.QueryRowContext(ctx, "SELECT farm_id FROM flocks WHERE id = ?", string(m.FlockID)).Scan(&farmID)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		}
		m.FarmID = generic.FarmID(farmID)
	}
	if err == nil {
		err = s.appendRow(ctx, "mortality",
			[]string{"id", "farm_id", "flock_id", "date", "count", "cause"},
			m.ID, string(m.FarmID), string(m.FlockID), m.Date.Key(), m.Count, m.Cause)
	}
	s.mu.Unlock()
	if err != nil {
		return generic.MortalityEvent{}, fmt.Errorf("failed to add mortality: %w", err)
	}

	s.Publish(ctx, generic.MutationEvent{Entity: generic.EntityMortality, Op: generic.OpCreate, ID: m.ID, FarmID: m.FarmID})
	return m, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). No mutation events are published;
// callers clear the report cache themselves.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"production", "feed_issues", "feed_purchases", "ledger_entries", "mortality", "flocks", "sheds", "parties", "farms"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(s string) generic.TimePoint {
	tp, _ := generic.ParseDate(s)
	return tp
}

func parseMoney(primary, secondary string) generic.Money {
	return generic.Money{Primary: generic.MustParseDecimal(primary), Secondary: generic.MustParseDecimal(secondary)}
}

