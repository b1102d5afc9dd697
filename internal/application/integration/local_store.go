package integration

import (
	"context"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeHook is notified of every local store write inside the writing transaction
type ChangeHook interface {
	AfterLocalWrite(ctx context.Context, repos TransactionalRepositories, change integration.LocalChange) error
}

// LocalStore is the CRUD surface of the local record store.
// Every write fires the change hook in the same transaction as the write.
type LocalStore struct {
	scope  TransactionScope
	hook   ChangeHook
	logger *zap.Logger
}

// NewLocalStore creates a LocalStore; hook may be nil
func NewLocalStore(scope TransactionScope, hook ChangeHook, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		scope:  scope,
		hook:   hook,
		logger: logger,
	}
}

// SetHook installs the change hook after construction
func (s *LocalStore) SetHook(hook ChangeHook) {
	s.hook = hook
}

// CreateRecordInput is the input of Create
type CreateRecordInput struct {
	EntityType  integration.EntityType
	OwnerID     uuid.UUID
	Fields      integration.Fields
	SyncEnabled bool
}

// Create inserts a new record
func (s *LocalStore) Create(ctx context.Context, in CreateRecordInput) (*integration.LocalRecord, error) {
	record, err := integration.NewLocalRecord(in.EntityType, in.OwnerID, in.Fields, in.SyncEnabled)
	if err != nil {
		return nil, err
	}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return s.SaveInTx(ctx, repos, record, record.Fields.Keys(), false)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateRecordInput is the input of Update
type UpdateRecordInput struct {
	Fields      integration.Fields
	SyncEnabled *bool
}

// Update merges fields into a record; only changed field names reach the hook.
// A flag-only change passes no field names, which exports the record in full.
func (s *LocalStore) Update(ctx context.Context, id uuid.UUID, in UpdateRecordInput) (*integration.LocalRecord, error) {
	var record *integration.LocalRecord
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		record, err = repos.Records().FindByID(ctx, id)
		if err != nil {
			return err
		}
		changed := record.Merge(in.Fields)
		flagChanged := false
		if in.SyncEnabled != nil && *in.SyncEnabled != record.SyncEnabled {
			record.SyncEnabled = *in.SyncEnabled
			record.Touch()
			flagChanged = true
		}
		if len(changed) == 0 && !flagChanged {
			return nil
		}
		return s.SaveInTx(ctx, repos, record, changed, false)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a record. The hook runs before the row is deleted so that it
// can still see the record's bindings.
func (s *LocalStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.Records().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if s.hook != nil {
			change := integration.LocalChange{
				EntityType: record.EntityType,
				LocalID:    record.ID,
				Owner:      record.OwnerID,
				Deleted:    true,
			}
			if err := s.hook.AfterLocalWrite(ctx, repos, change); err != nil {
				return fmt.Errorf("change hook: %w", err)
			}
		}
		return repos.Records().Delete(ctx, id)
	})
}

// Get returns one record
func (s *LocalStore) Get(ctx context.Context, id uuid.UUID) (*integration.LocalRecord, error) {
	var record *integration.LocalRecord
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		record, err = repos.Records().FindByID(ctx, id)
		return err
	})
	return record, err
}

// List returns a page of records of one type
func (s *LocalStore) List(ctx context.Context, entityType integration.EntityType, filter shared.Filter) ([]integration.LocalRecord, int64, error) {
	var (
		records []integration.LocalRecord
		total   int64
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		records, total, err = repos.Records().List(ctx, entityType, filter)
		return err
	})
	return records, total, err
}

// SaveInTx persists a record inside an existing transaction and fires the hook.
// noExport tags the write so the change trigger does not echo it back to the remote.
func (s *LocalStore) SaveInTx(
	ctx context.Context,
	repos TransactionalRepositories,
	record *integration.LocalRecord,
	changed []string,
	noExport bool,
) error {
	if err := repos.Records().Save(ctx, record); err != nil {
		return err
	}
	if s.hook == nil {
		return nil
	}
	change := integration.LocalChange{
		EntityType:    record.EntityType,
		LocalID:       record.ID,
		Owner:         record.OwnerID,
		ChangedFields: changed,
		NoExport:      noExport,
	}
	if err := s.hook.AfterLocalWrite(ctx, repos, change); err != nil {
		return fmt.Errorf("change hook: %w", err)
	}
	return nil
}
