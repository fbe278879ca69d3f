package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
	"github.com/bft-labs/casebatch/pkg/log"
)

const busyTimeoutMillis = 5000

// Options configures a Store.
type Options struct {
	// Autosave commits every mutation before it returns.
	// When false, mutations other than claims accumulate in one pending
	// transaction until Save is called.
	Autosave bool

	// Logger receives store diagnostics. Defaults to a no-op logger.
	Logger ports.Logger
}

// Store implements ports.CaseStore and ports.ProgressSource using SQLite.
type Store struct {
	db       *sql.DB
	path     string
	autosave bool
	logger   ports.Logger

	mu      sync.Mutex
	pending *sql.Tx
}

var (
	_ ports.CaseStore      = (*Store)(nil)
	_ ports.ProgressSource = (*Store)(nil)
)

// Open opens (creating if needed) the case database at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", domain.ErrInvalidConfig)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// Connection parameters apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=FULL&_txlock=exclusive",
		path, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	s := &Store{
		db:       db,
		path:     path,
		autosave: opts.Autosave,
		logger:   logger,
	}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close flushes any pending transaction and closes the database.
func (s *Store) Close() error {
	saveErr := s.Save(context.Background())
	if err := s.db.Close(); err != nil {
		return err
	}
	return saveErr
}

// Create inserts a new unclaimed, unresulted case and returns its id.
// Duplicate inputs are allowed.
func (s *Store) Create(ctx context.Context, c domain.Case) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	res, err := s.exec(ctx,
		`INSERT INTO cases (profile, evidence, contributors, deducible, quantity, theta, labkitid)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Profile, c.Evidence, c.Contributors, c.Deducible, c.Quantity, c.Theta, nullString(c.LabKitID),
	)
	if err != nil {
		return 0, fmt.Errorf("insert case: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert case: %w", err)
	}
	return id, nil
}

// ClaimBatch assigns up to maxCount claimable cases to workerID, lowest ids
// first, and returns them. Any pending transaction is committed first. Cases
// are returned only once the claim has committed; ctx is honoured up to that
// point and never interrupts the claim transaction itself.
func (s *Store) ClaimBatch(ctx context.Context, workerID string, maxCount int) ([]domain.Case, error) {
	if workerID == "" {
		return nil, domain.ErrInvalidClaimKey
	}
	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidBatchSize, maxCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil && !errors.Is(err, domain.ErrStoreContention) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A cancelled statement context rolls the transaction back under us.
	txCtx := context.Background()
	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := claimableIDs(txCtx, tx, maxCount)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Case{}, nil
	}

	placeholders, args := inClause(ids)
	if _, err := tx.ExecContext(txCtx,
		`UPDATE cases SET claimant = ? WHERE id IN (`+placeholders+`)`,
		append([]any{workerID}, args...)...,
	); err != nil {
		return nil, fmt.Errorf("mark claimed: %w", err)
	}

	rows, err := tx.QueryContext(txCtx,
		`SELECT `+caseColumns+` FROM cases WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("read claimed: %w", err)
	}
	cases, err := scanCases(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	s.logger.Debug("claimed batch",
		ports.String("worker", workerID),
		ports.Int("count", len(cases)),
	)
	return cases, nil
}

func claimableIDs(ctx context.Context, tx *sql.Tx, maxCount int) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM cases WHERE claimant IS NULL AND result IS NULL ORDER BY id LIMIT ?`, maxCount)
	if err != nil {
		return nil, fmt.Errorf("select claimable: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimable: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WriteResult stores the result of case id, making it terminal.
// A second write for the same id overwrites the first.
func (s *Store) WriteResult(ctx context.Context, id int64, result domain.Result) error {
	data, err := domain.MarshalResult(result)
	if err != nil {
		return err
	}

	res, err := s.exec(ctx, `UPDATE cases SET result = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("write result for case %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write result for case %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: case %d", domain.ErrInvalidTarget, id)
	}
	return nil
}

// UnclaimIncomplete returns every abandoned case to the claimable state and
// reports how many rows changed. Finished cases are untouched.
func (s *Store) UnclaimIncomplete(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `UPDATE cases SET claimant = NULL WHERE result IS NULL AND claimant IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("unclaim incomplete: %w", err)
	}
	return res.RowsAffected()
}

// ResetAll clears claimant and result on every case.
func (s *Store) ResetAll(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `UPDATE cases SET claimant = NULL, result = NULL`)
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	return res.RowsAffected()
}

// Save commits the pending transaction, if any.
// A commit that lost a race with another transaction boundary is already
// durable and is reported as success.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.flushLocked()
	if errors.Is(err, domain.ErrStoreContention) {
		s.logger.Debug("save raced with another commit", ports.Err(err))
		return nil
	}
	return err
}

// Counts returns aggregate progress over all cases.
func (s *Store) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN claimant IS NOT NULL AND result IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM cases`,
	).Scan(&c.Total, &c.InProgress, &c.Finished)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("count cases: %w", err)
	}
	return c, nil
}

// Get returns the case with the given id.
func (s *Store) Get(ctx context.Context, id int64) (domain.Case, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	if err != nil {
		return domain.Case{}, fmt.Errorf("get case %d: %w", id, err)
	}
	cases, err := scanCases(rows)
	if err != nil {
		return domain.Case{}, err
	}
	if len(cases) == 0 {
		return domain.Case{}, fmt.Errorf("%w: case %d", domain.ErrInvalidTarget, id)
	}
	return cases[0], nil
}

// Filter selects which cases List returns.
type Filter int

const (
	// FilterAll selects every case.
	FilterAll Filter = iota
	// FilterPending selects claimable cases.
	FilterPending
	// FilterInProgress selects claimed cases without a result.
	FilterInProgress
	// FilterFinished selects cases with a result.
	FilterFinished
)

// ParseFilter maps a filter name to a Filter.
func ParseFilter(name string) (Filter, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return FilterAll, nil
	case "pending":
		return FilterPending, nil
	case "in-progress", "inprogress", "claimed":
		return FilterInProgress, nil
	case "finished", "done":
		return FilterFinished, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q", name)
}

func (f Filter) where() string {
	switch f {
	case FilterPending:
		return ` WHERE claimant IS NULL AND result IS NULL`
	case FilterInProgress:
		return ` WHERE claimant IS NOT NULL AND result IS NULL`
	case FilterFinished:
		return ` WHERE result IS NOT NULL`
	}
	return ""
}

// List returns the cases matching filter ordered by id.
// A positive limit caps the number of rows returned.
func (s *Store) List(ctx context.Context, filter Filter, limit int) ([]domain.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM cases` + filter.where() + ` ORDER BY id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return scanCases(rows)
}

// Results calls fn for every finished case in id order.
// Iteration stops at the first error returned by fn.
func (s *Store) Results(ctx context.Context, fn func(domain.Case) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases`+FilterFinished.where()+` ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// exec runs a mutation under the store mutex, either in its own autocommit
// statement or inside the pending transaction.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autosave {
		return s.db.ExecContext(ctx, query, args...)
	}

	if s.pending == nil {
		// The pending transaction outlives the call that opened it.
		tx, err := s.db.BeginTx(context.Background(), nil)
		if err != nil {
			return nil, fmt.Errorf("begin pending: %w", err)
		}
		s.pending = tx
	}
	return s.pending.ExecContext(ctx, query, args...)
}

func (s *Store) flushLocked() error {
	if s.pending == nil {
		return nil
	}
	tx := s.pending
	s.pending = nil
	return commitPending(tx)
}

// commitPending commits the batching transaction. SQLite reports "no
// transaction is active" when a concurrent writer already ended it; that is
// the only failure reported as contention.
func commitPending(tx *sql.Tx) error {
	err := tx.Commit()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no transaction is active") {
		return fmt.Errorf("%w: %v", domain.ErrStoreContention, err)
	}
	return fmt.Errorf("commit: %w", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(sc scanner) (domain.Case, error) {
	var (
		c         domain.Case
		deducible int64
		labKitID  sql.NullString
		result    sql.NullString
		claimant  sql.NullString
	)
	if err := sc.Scan(
		&c.ID, &c.Profile, &c.Evidence, &c.Contributors, &deducible,
		&c.Quantity, &c.Theta, &labKitID, &result, &claimant,
	); err != nil {
		return domain.Case{}, fmt.Errorf("scan case: %w", err)
	}
	c.Deducible = deducible != 0
	c.LabKitID = labKitID.String
	c.Claimant = claimant.String
	if result.Valid {
		r, err := domain.UnmarshalResult([]byte(result.String))
		if err != nil {
			return domain.Case{}, fmt.Errorf("decode result of case %d: %w", c.ID, err)
		}
		c.Result = r
	}
	return c, nil
}

func scanCases(rows *sql.Rows) ([]domain.Case, error) {
	defer rows.Close()

	cases := []domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
