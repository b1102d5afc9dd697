package integration

import (
	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// RequestContext carries the identity and transaction a sync operation runs under.
// It is passed explicitly instead of living in ambient state.
type RequestContext struct {
	// Principal is the user whose credentials reach the remote entity
	Principal uuid.UUID
	// System is the remote system being synchronized
	System integration.SystemCode
	// CorrelationID ties log lines and follow-up jobs to the originating request
	CorrelationID string
	// Tx is the repository set of the enclosing transaction
	Tx TransactionalRepositories
}

// NewRequestContext creates a request context without a transaction
func NewRequestContext(principal uuid.UUID, system integration.SystemCode, correlationID string) RequestContext {
	return RequestContext{
		Principal:     principal,
		System:        system,
		CorrelationID: correlationID,
	}
}

// WithTx returns a copy bound to a transaction
func (rc RequestContext) WithTx(tx TransactionalRepositories) RequestContext {
	rc.Tx = tx
	return rc
}

// bindingKey builds the binding lookup key for a remote id
func (rc RequestContext) bindingKey(entityType integration.EntityType, remoteID string) integration.BindingKey {
	return integration.BindingKey{
		System:     rc.System,
		EntityType: entityType,
		RemoteID:   remoteID,
		Principal:  rc.Principal,
	}
}
