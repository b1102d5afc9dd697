// Package integration contains the Integration bounded context.
// This context keeps local records and their counterparts in a remote directory
// (contacts, calendar events) consistent in both directions.
//
// Key concepts:
//   - Binding: Entity linking one local record to one remote entity, with version bookkeeping
//   - VersionToken: Opaque remote stamp used only for optimistic-concurrency comparison
//   - SyncJob: Durable unit of work (export, import, delete) with retry bookkeeping
//   - SyncError: Retryable / Fatal classification of a failed job attempt
//   - RemoteDirectory, LockManager, AttachmentStore: Ports implemented in infrastructure
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
