package integration

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Attachment is file content attached to a local record.
// The bytes live in object storage under StorageKey.
type Attachment struct {
	shared.BaseEntity
	RecordID    uuid.UUID
	Name        string
	ContentType string
	Size        int64
	ContentHash string
	StorageKey  string
}

// ContentHash returns the hex BLAKE2b-256 digest of content
func ContentHash(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ContentHashReader digests a stream without buffering it
func ContentHashReader(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewAttachment creates an attachment entry for content stored under a derived key
func NewAttachment(recordID uuid.UUID, name, contentType string, content []byte) *Attachment {
	a := &Attachment{
		BaseEntity:  shared.NewBaseEntity(),
		RecordID:    recordID,
		Name:        name,
		ContentType: contentType,
	}
	a.StorageKey = fmt.Sprintf("attachments/%s/%s", recordID, a.ID)
	a.SetContent(contentType, content)
	return a
}

// SameContent reports whether content matches the stored digest
func (a *Attachment) SameContent(content []byte) bool {
	return a.ContentHash == ContentHash(content)
}

// SetContent records the metadata of new content
func (a *Attachment) SetContent(contentType string, content []byte) {
	a.ContentType = contentType
	a.Size = int64(len(content))
	a.ContentHash = ContentHash(content)
	a.Touch()
}

// AttachmentRepository persists attachment metadata
type AttachmentRepository interface {
	FindByRecord(ctx context.Context, recordID uuid.UUID) ([]Attachment, error)
	Save(ctx context.Context, attachment *Attachment) error
	Delete(ctx context.Context, id uuid.UUID) error
}
