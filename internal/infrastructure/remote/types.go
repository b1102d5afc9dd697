package remote

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
)

// entityPayload is the body of create and update requests
type entityPayload struct {
	Fields map[string]string `json:"fields"`
}

// entityResponse is a single entity as returned by the directory
type entityResponse struct {
	ID          string               `json:"id"`
	ETag        string               `json:"etag,omitempty"`
	Fields      map[string]string    `json:"fields"`
	Occurrences []occurrenceResponse `json:"occurrences,omitempty"`
	Attachments []attachmentResponse `json:"attachments,omitempty"`
}

type occurrenceResponse struct {
	OriginalStart time.Time `json:"original_start"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Subject       string    `json:"subject,omitempty"`
	Cancelled     bool      `json:"cancelled,omitempty"`
}

type attachmentResponse struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	// Content is base64 in the wire format
	Content []byte `json:"content"`
}

// listResponse is one enumeration page
type listResponse struct {
	IDs           []string `json:"ids"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// errorResponse is the directory's error body
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *entityResponse) toDomain(etag string) *integration.RemoteEntity {
	token := etag
	if token == "" {
		token = r.ETag
	}
	entity := &integration.RemoteEntity{
		RemoteID: r.ID,
		Token:    integration.VersionToken(token),
		Fields:   integration.Representation(r.Fields),
	}
	if entity.Fields == nil {
		entity.Fields = integration.Representation{}
	}
	for _, o := range r.Occurrences {
		entity.Occurrences = append(entity.Occurrences, integration.RemoteOccurrence{
			OriginalStart: o.OriginalStart,
			Start:         o.Start,
			End:           o.End,
			Subject:       o.Subject,
			Cancelled:     o.Cancelled,
		})
	}
	for _, a := range r.Attachments {
		entity.Attachments = append(entity.Attachments, integration.RemoteAttachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	return entity
}
