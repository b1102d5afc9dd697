package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// Binder resolves identifiers and persists binding state.
// All operations run against the binding store of rc.Tx. Tokens are only ever
// written with values returned by the remote call the caller just performed.
type Binder struct{}

// NewBinder creates a Binder
func NewBinder() *Binder {
	return &Binder{}
}

// Resolve returns the binding for a remote id, or nil when none exists
func (b *Binder) Resolve(ctx context.Context, rc RequestContext, entityType integration.EntityType, remoteID string) (*integration.Binding, error) {
	binding, err := rc.Tx.Bindings().FindByRemoteID(ctx, rc.bindingKey(entityType, remoteID))
	if errors.Is(err, integration.ErrBindingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return binding, nil
}

// ResolveLocal returns the binding of a local record for rc.System, or nil when none exists
func (b *Binder) ResolveLocal(ctx context.Context, rc RequestContext, localID uuid.UUID) (*integration.Binding, error) {
	bindings, err := rc.Tx.Bindings().FindByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}
	for i := range bindings {
		if bindings[i].System == rc.System {
			return &bindings[i], nil
		}
	}
	return nil, nil
}

// Autobind creates and persists an unbound binding for a local record
func (b *Binder) Autobind(ctx context.Context, rc RequestContext, entityType integration.EntityType, localID uuid.UUID) (*integration.Binding, error) {
	binding, err := integration.NewBinding(rc.System, entityType, localID, rc.Principal)
	if err != nil {
		return nil, err
	}
	if err := rc.Tx.Bindings().Save(ctx, binding); err != nil {
		return nil, fmt.Errorf("autobind %s: %w", localID, err)
	}
	return binding, nil
}

// Bind records the remote id and token on a binding and persists it.
// A remote id already bound for the same owner yields integration.ErrBindingConflict.
func (b *Binder) Bind(ctx context.Context, rc RequestContext, binding *integration.Binding, remoteID string, token integration.VersionToken, status integration.SyncStatus) error {
	if err := binding.Bind(remoteID, token, status); err != nil {
		return err
	}
	return rc.Tx.Bindings().Save(ctx, binding)
}

// Rebind points a stale binding at a freshly created remote entity
func (b *Binder) Rebind(ctx context.Context, rc RequestContext, binding *integration.Binding, remoteID string, token integration.VersionToken) error {
	if err := binding.Rebind(remoteID, token); err != nil {
		return err
	}
	return rc.Tx.Bindings().Save(ctx, binding)
}

// UpdateToken records a new token returned by a remote write or read
func (b *Binder) UpdateToken(ctx context.Context, rc RequestContext, binding *integration.Binding, token integration.VersionToken) error {
	if err := binding.MarkSynced(token); err != nil {
		return err
	}
	return rc.Tx.Bindings().Save(ctx, binding)
}

// MarkDeferred persists the conflict_deferred status
func (b *Binder) MarkDeferred(ctx context.Context, rc RequestContext, binding *integration.Binding) error {
	binding.MarkDeferred()
	return rc.Tx.Bindings().Save(ctx, binding)
}

// MarkStale persists the stale status
func (b *Binder) MarkStale(ctx context.Context, rc RequestContext, binding *integration.Binding) error {
	binding.MarkStale()
	return rc.Tx.Bindings().Save(ctx, binding)
}

// Unbind deletes a binding
func (b *Binder) Unbind(ctx context.Context, rc RequestContext, binding *integration.Binding) error {
	err := rc.Tx.Bindings().Delete(ctx, binding.ID)
	if errors.Is(err, integration.ErrBindingNotFound) {
		return nil
	}
	return err
}

// SyncStatus returns the sync status of a local record; unbound when no binding exists
func (b *Binder) SyncStatus(ctx context.Context, rc RequestContext, localID uuid.UUID) (integration.SyncStatus, error) {
	binding, err := b.ResolveLocal(ctx, rc, localID)
	if err != nil {
		return "", err
	}
	if binding == nil {
		return integration.SyncStatusUnbound, nil
	}
	return binding.Status, nil
}
