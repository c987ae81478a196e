package gallery

import (
	"time"
)

// IngestRequest for POST /gallery/ingest. The storage key and fingerprint
// come from the upload stage; the idempotency key is optional client
// cooperation.
type IngestRequest struct {
	StorageKey     string `json:"storage_key" validate:"required,max=512"`
	PerceptualHash string `json:"perceptual_hash,omitempty" validate:"phash"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=128"`
}

// IngestResponse is the terminal payload of an ingest request
type IngestResponse struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Variants    map[string]string `json:"variants"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
}

// IngestResponseFromResult converts a pipeline result to the wire shape
func IngestResponseFromResult(r *IngestResult) *IngestResponse {
	resp := &IngestResponse{
		ID:       r.ID.String(),
		Status:   string(r.Status),
		Variants: r.VariantURLs,
		Width:    r.Width,
		Height:   r.Height,
	}
	if resp.Variants == nil {
		resp.Variants = map[string]string{}
	}
	if r.Outcome == OutcomeDuplicate {
		resp.DuplicateOf = r.DuplicateOf.String()
	}
	return resp
}

// UpdateStatusRequest for PATCH /gallery/{id}/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,entry_status"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// EntryResponse represents a catalog entry in API responses
type EntryResponse struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id,omitempty"`
	Status          string            `json:"status"`
	Variants        map[string]string `json:"variants"`
	Width           int               `json:"width,omitempty"`
	Height          int               `json:"height,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	DeletedAt       string            `json:"deleted_at,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// EntryResponseFromEntity converts entity to response DTO
func EntryResponseFromEntity(e *Entry) *EntryResponse {
	resp := &EntryResponse{
		ID:        e.ID.String(),
		Status:    string(e.Status),
		Variants:  e.VariantURLs,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
	if resp.Variants == nil {
		resp.Variants = map[string]string{}
	}
	if e.OwnerID.Valid {
		resp.OwnerID = e.OwnerID.UUID.String()
	}
	if e.Width.Valid {
		resp.Width = int(e.Width.Int64)
	}
	if e.Height.Valid {
		resp.Height = int(e.Height.Int64)
	}
	if e.RejectionReason.Valid {
		resp.RejectionReason = e.RejectionReason.String
	}
	if e.DeletedAt.Valid {
		resp.DeletedAt = e.DeletedAt.Time.Format(time.RFC3339)
	}
	return resp
}

// AuditResponse represents one audit record in API responses
type AuditResponse struct {
	ID        string `json:"id"`
	EntryID   string `json:"entry_id"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AuditResponseFromEntity converts entity to response DTO
func AuditResponseFromEntity(a *AuditEntry) *AuditResponse {
	resp := &AuditResponse{
		ID:        a.ID.String(),
		EntryID:   a.EntryID.String(),
		Action:    string(a.Action),
		Actor:     a.Actor,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.Reason.Valid {
		resp.Reason = a.Reason.String
	}
	return resp
}
