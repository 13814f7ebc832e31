// Package sqlite implements a persistent, idempotent story ledger on SQLite
// that satisfies completion.Gateway. It stands in for the chain in local
// deployments and is what the bundled signer serves.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/types"
)

// ErrUnknownStory is returned for operations on an unregistered story.
var ErrUnknownStory = errors.New("unknown story")

// Ledger is the SQLite-backed ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

var _ completion.Gateway = (*Ledger)(nil)

// Open opens or creates a ledger database at path and migrates the schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; concurrent readers would only contend on the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS stories (
			story_id TEXT PRIMARY KEY,
			total_slots INTEGER NOT NULL,
			finalized_at TEXT
		);

		CREATE TABLE IF NOT EXISTS revealed_slots (
			story_id TEXT NOT NULL,
			slot INTEGER NOT NULL,
			tx_hash TEXT NOT NULL,
			PRIMARY KEY (story_id, slot),
			FOREIGN KEY (story_id) REFERENCES stories(story_id)
		);

		CREATE TABLE IF NOT EXISTS transactions (
			tx_hash TEXT PRIMARY KEY,
			story_id TEXT NOT NULL,
			op TEXT NOT NULL,
			range_start INTEGER,
			range_end INTEGER,
			applied INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RegisterStory records a story with totalSlots filled slots awaiting
// reveal. Re-registering updates the slot count.
func (l *Ledger) RegisterStory(ctx context.Context, id types.StoryID, totalSlots int) error {
	if id == "" {
		return completion.ErrInvalidStoryID
	}
	if totalSlots < 1 {
		return completion.ErrInvalidSlotCount
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stories (story_id, total_slots) VALUES (?, ?)
		 ON CONFLICT(story_id) DO UPDATE SET total_slots = excluded.total_slots`,
		string(id), totalSlots,
	)
	if err != nil {
		return fmt.Errorf("register story: %w", err)
	}
	return nil
}

// ProcessCompletionBatch implements completion.Gateway. Slots already
// revealed are left untouched.
func (l *Ledger) ProcessCompletionBatch(ctx context.Context, storyID types.StoryID, r types.SlotRange) (completion.Receipt, error) {
	if !r.Valid() {
		return completion.Receipt{}, fmt.Errorf("sqlite ledger: invalid range %s", r)
	}
	if r.Size() > completion.MaxBatchSize {
		return completion.Receipt{}, fmt.Errorf("%w: %d slots (max %d)", completion.ErrRangeTooLarge, r.Size(), completion.MaxBatchSize)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return completion.Receipt{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total, _, err := loadStory(ctx, tx, storyID)
	if err != nil {
		return completion.Receipt{}, err
	}
	if r.End > total {
		return completion.Receipt{}, fmt.Errorf("sqlite ledger: range %s exceeds story slots (%d)", r, total)
	}

	txHash := newTxHash()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO revealed_slots (story_id, slot, tx_hash) VALUES (?, ?, ?)`)
	if err != nil {
		return completion.Receipt{}, fmt.Errorf("prepare reveal: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted int64
	for slot := r.Start; slot <= r.End; slot++ {
		res, err := stmt.ExecContext(ctx, string(storyID), slot, txHash)
		if err != nil {
			return completion.Receipt{}, fmt.Errorf("reveal slot %d: %w", slot, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	applied := inserted > 0
	if err := l.recordTx(ctx, tx, txHash, storyID, "batch", &r, applied); err != nil {
		return completion.Receipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return completion.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return completion.Receipt{TxHash: txHash, Applied: applied}, nil
}

// FinalizeStory implements completion.Gateway.
func (l *Ledger) FinalizeStory(ctx context.Context, storyID types.StoryID) (completion.Receipt, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return completion.Receipt{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total, finalized, err := loadStory(ctx, tx, storyID)
	if err != nil {
		return completion.Receipt{}, err
	}

	txHash := newTxHash()
	applied := false
	if !finalized {
		var revealed int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM revealed_slots WHERE story_id = ? AND slot <= ?`, string(storyID), total,
		).Scan(&revealed)
		if err != nil {
			return completion.Receipt{}, fmt.Errorf("count revealed: %w", err)
		}
		if hidden := total - revealed; hidden > 0 {
			return completion.Receipt{}, fmt.Errorf("%w: %d slots unrevealed", completion.ErrStoryNotReady, hidden)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE stories SET finalized_at = ? WHERE story_id = ? AND finalized_at IS NULL`,
			l.now().UTC().Format(time.RFC3339), string(storyID),
		)
		if err != nil {
			return completion.Receipt{}, fmt.Errorf("finalize: %w", err)
		}
		applied = true
	}

	if err := l.recordTx(ctx, tx, txHash, storyID, "finalize", nil, applied); err != nil {
		return completion.Receipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return completion.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return completion.Receipt{TxHash: txHash, Applied: applied}, nil
}

// StoryStatus summarizes a story on the ledger.
type StoryStatus struct {
	StoryID       types.StoryID `json:"story_id"`
	TotalSlots    int           `json:"total_slots"`
	RevealedSlots int           `json:"revealed_slots"`
	Finalized     bool          `json:"finalized"`
}

// Status reports the ledger view of a story. Reveals past the current slot
// count of a shrunk story are not counted.
func (l *Ledger) Status(ctx context.Context, storyID types.StoryID) (StoryStatus, error) {
	var (
		status      StoryStatus
		finalizedAt sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT s.total_slots, s.finalized_at,
		        (SELECT COUNT(*) FROM revealed_slots r
		         WHERE r.story_id = s.story_id AND r.slot <= s.total_slots)
		 FROM stories s WHERE s.story_id = ?`, string(storyID),
	).Scan(&status.TotalSlots, &finalizedAt, &status.RevealedSlots)
	if errors.Is(err, sql.ErrNoRows) {
		return StoryStatus{}, fmt.Errorf("%w %q", ErrUnknownStory, storyID)
	}
	if err != nil {
		return StoryStatus{}, fmt.Errorf("query story: %w", err)
	}
	status.StoryID = storyID
	status.Finalized = finalizedAt.Valid
	return status, nil
}

func loadStory(ctx context.Context, tx *sql.Tx, storyID types.StoryID) (total int, finalized bool, err error) {
	var finalizedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT total_slots, finalized_at FROM stories WHERE story_id = ?`, string(storyID),
	).Scan(&total, &finalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("%w %q", ErrUnknownStory, storyID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("load story: %w", err)
	}
	return total, finalizedAt.Valid, nil
}

func (l *Ledger) recordTx(ctx context.Context, tx *sql.Tx, txHash string, storyID types.StoryID, op string, r *types.SlotRange, applied bool) error {
	var start, end sql.NullInt64
	if r != nil {
		start = sql.NullInt64{Int64: int64(r.Start), Valid: true}
		end = sql.NullInt64{Int64: int64(r.End), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (tx_hash, story_id, op, range_start, range_end, applied, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txHash, string(storyID), op, start, end, applied, l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// newTxHash returns a 32-byte hex identifier in the 0x-prefixed form
// gateways report.
func newTxHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + strings.ReplaceAll(a.String()+b.String(), "-", "")
}
