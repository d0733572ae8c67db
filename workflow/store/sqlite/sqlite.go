//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-backed checkpoint storage for durable
// single-node deployments. The sequence rule is enforced inside one
// transaction, so concurrent writers serialize through the database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-flow-go/workflow"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"thread_id TEXT NOT NULL, " +
		"seq INTEGER NOT NULL, " +
		"step_id TEXT NOT NULL, " +
		"status TEXT NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"created_at INTEGER NOT NULL, " +
		"PRIMARY KEY (thread_id, seq)" +
		")"

	sqliteSelectMaxSeq = "SELECT COALESCE(MAX(seq), 0) FROM checkpoints WHERE thread_id = ?"

	sqliteInsertCheckpoint = "INSERT INTO checkpoints (" +
		"thread_id, seq, step_id, status, checkpoint_json, created_at) " +
		"VALUES (?, ?, ?, ?, ?, ?)"

	sqliteSelectLatest = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY seq DESC LIMIT 1"

	sqliteSelectBySeq = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? AND seq = ?"

	sqliteDeleteThread = "DELETE FROM checkpoints WHERE thread_id = ?"

	sqliteSelectThreads = "SELECT DISTINCT thread_id FROM checkpoints"

	sqliteSelectExpired = "SELECT DISTINCT thread_id FROM checkpoints " +
		"WHERE status = ? AND created_at < ?"
)

// Store persists checkpoints in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an opened database handle and ensures the
// schema exists. The caller owns driver registration (for example
// importing github.com/mattn/go-sqlite3) and connection options.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is required")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put appends a checkpoint. The read of the current maximum sequence and
// the insert happen in one transaction; a duplicate primary key from a
// racing writer also surfaces as ErrConflict.
func (s *Store) Put(ctx context.Context, checkpoint *workflow.Checkpoint) error {
	if checkpoint == nil {
		return errors.New("sqlite: checkpoint is nil")
	}
	data, err := workflow.EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, sqliteSelectMaxSeq, checkpoint.ThreadID).Scan(&last); err != nil {
		return fmt.Errorf("query latest seq: %w", err)
	}
	if checkpoint.Seq != last+1 {
		return fmt.Errorf("thread %s: seq %d after %d: %w",
			checkpoint.ThreadID, checkpoint.Seq, last, workflow.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, sqliteInsertCheckpoint,
		checkpoint.ThreadID,
		checkpoint.Seq,
		checkpoint.StepID,
		string(checkpoint.Status),
		data,
		checkpoint.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint of a thread.
func (s *Store) Latest(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	return s.queryOne(ctx, threadID, sqliteSelectLatest, threadID)
}

// Get returns the checkpoint at a specific sequence.
func (s *Store) Get(ctx context.Context, threadID string, seq int64) (*workflow.Checkpoint, error) {
	return s.queryOne(ctx, threadID, sqliteSelectBySeq, threadID, seq)
}

func (s *Store) queryOne(ctx context.Context, threadID, query string, args ...any) (*workflow.Checkpoint, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", threadID, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	return workflow.DecodeCheckpoint(data)
}

// DeleteThread removes all checkpoints of a thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDeleteThread, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// Threads lists all thread IDs with at least one checkpoint.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	return s.queryThreadIDs(ctx, sqliteSelectThreads)
}

// SuspendedBefore lists threads whose history contains a suspended
// checkpoint created before the cutoff. Callers still check the latest
// checkpoint before acting, since the thread may have moved on.
func (s *Store) SuspendedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.queryThreadIDs(ctx, sqliteSelectExpired,
		string(workflow.StatusSuspended), cutoff.UnixNano())
}

func (s *Store) queryThreadIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ workflow.Store        = (*Store)(nil)
	_ workflow.ThreadLister = (*Store)(nil)
)
