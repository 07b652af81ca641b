package migration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/storage"
	"github.com/arkilian/entitydb/internal/store"
)

// Status is the outcome of a step on one shard.
type Status string

const (
	StatusApplied        Status = "applied"
	StatusAlreadyApplied Status = "already_applied"
	StatusMissing        Status = "missing"
	StatusFailed         Status = "failed"
)

// ShardResult records what happened to one shard.
type ShardResult struct {
	ID       string
	Path     string
	Status   Status
	Snapshot string
	Err      error
}

// Report summarizes one Run.
type Report struct {
	RunID   string
	From    string
	To      string
	Results []ShardResult
}

// Count returns how many shards ended with status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the results of shards that were missing or failed.
func (r *Report) Failed() []ShardResult {
	var out []ShardResult
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusMissing {
			out = append(out, res)
		}
	}
	return out
}

// Locator maps a shard id to its database file path.
type Locator func(id string) string

// Options configures an Engine.
type Options struct {
	// Backup uploads a snapshot of every shard before changing it.
	Backup bool

	// Storage receives snapshots. Required when Backup is set.
	Storage storage.ObjectStorage

	// Store is used to open shard files.
	Store store.Options
}

// Engine applies upgrade steps across shards.
type Engine struct {
	locate Locator
	opts   Options
}

// NewEngine creates an engine that finds shard files with locate.
func NewEngine(locate Locator, opts Options) *Engine {
	return &Engine{locate: locate, opts: opts}
}

// Run selects the step that upgrades current to target and applies it to
// every shard in ids, in order. Each shard is upgraded in its own
// transaction; a missing or failing shard is recorded in the report and the
// remaining shards are still processed.
func (e *Engine) Run(ctx context.Context, ids []string, current, target string, steps []Step) (*Report, error) {
	step, ok := SelectStep(steps, current, target)
	if !ok {
		return nil, apperrors.NewMigrationError(apperrors.CodeNoMatchingStep,
			fmt.Sprintf("no step upgrades %s to %s", current, target), nil)
	}
	if e.opts.Backup && e.opts.Storage == nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidConfig, "migration backup enabled without storage")
	}

	report := &Report{RunID: uuid.NewString(), From: current, To: target}
	log.Printf("migration: run %s upgrading %d shard(s) %s -> %s", report.RunID, len(ids), current, target)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := e.applyShard(ctx, report.RunID, id, current, step)
		switch res.Status {
		case StatusApplied:
			log.Printf("migration: shard %s upgraded to %s", id, target)
		case StatusAlreadyApplied:
			log.Printf("migration: shard %s already at %s", id, target)
		default:
			log.Printf("migration: [WARN] shard %s %s: %v", id, res.Status, res.Err)
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (e *Engine) applyShard(ctx context.Context, runID, id, current string, step *Step) ShardResult {
	res := ShardResult{ID: id, Path: e.locate(id)}

	db, err := store.OpenExisting(res.Path, e.opts.Store)
	if err != nil {
		if errors.Is(err, store.ErrNoDatabase) {
			res.Status = StatusMissing
			res.Err = apperrors.NewMigrationError(apperrors.CodeShardMissing, "shard database does not exist: "+res.Path, err)
			return res
		}
		return failed(res, err)
	}
	defer db.Close()

	if err := installHistory(db); err != nil {
		return failed(res, err)
	}
	checksum := step.Checksum()
	done, err := alreadyApplied(ctx, db, step.ToVersion, checksum)
	if err != nil {
		return failed(res, err)
	}
	if done {
		res.Status = StatusAlreadyApplied
		return res
	}

	if e.opts.Backup {
		key := SnapshotKey(runID, res.Path, current)
		if err := Snapshot(ctx, db, e.opts.Storage, key); err != nil {
			res.Err = apperrors.NewMigrationError(apperrors.CodeSnapshotFailed, "snapshot failed, shard left untouched", err)
			res.Status = StatusFailed
			return res
		}
		res.Snapshot = key
	}

	err = db.RunInTransaction(ctx, func(tx *store.Tx) error {
		for _, stmt := range step.SQL() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return recordApplied(ctx, tx, HistoryEntry{
			RunID:       runID,
			FromVersion: current,
			ToVersion:   step.ToVersion,
			Checksum:    checksum,
			AppliedAt:   time.Now(),
		})
	})
	if err != nil {
		return failed(res, err)
	}
	res.Status = StatusApplied
	return res
}

func failed(res ShardResult, err error) ShardResult {
	res.Status = StatusFailed
	res.Err = apperrors.NewMigrationError(apperrors.CodeStepFailed, "upgrade of "+res.ID+" failed", err)
	return res
}
