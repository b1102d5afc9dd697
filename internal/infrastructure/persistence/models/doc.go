// Package models holds the GORM table mappings for the connector schema.
// Domain types stay free of ORM tags; each model converts to and from its
// domain counterpart and repositories only ever persist models.
//
//   - integration.go: bindings, local records, occurrences, attachments
//   - sync.go: job queue, cursors and subscriptions
package models
