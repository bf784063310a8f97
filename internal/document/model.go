package document

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultDocumentID is the logical identifier used by single-document deployments.
const DefaultDocumentID = "main"

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("document: invalid document id")
	// ErrInvalidTimestamp indicates that a logical timestamp value is negative.
	ErrInvalidTimestamp = errors.New("document: invalid logical timestamp")
	// ErrInvalidRevisionID indicates that a revision identifier is not positive.
	ErrInvalidRevisionID = errors.New("document: invalid revision id")
)

// DocumentID represents a validated logical document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// LogicalTimestamp is an ordering token in wall-clock milliseconds. It is not
// trusted as true time; it only decides which of two writes is newer. Zero is
// the sentinel for "no prior write".
type LogicalTimestamp int64

// NewLogicalTimestamp validates the value and returns a LogicalTimestamp.
func NewLogicalTimestamp(value int64) (LogicalTimestamp, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return LogicalTimestamp(value), nil
}

// Int64 exposes the raw millisecond value.
func (ts LogicalTimestamp) Int64() int64 {
	return int64(ts)
}

// RevisionID represents a validated archive entry identifier.
type RevisionID int64

// NewRevisionID validates the value and returns a RevisionID.
func NewRevisionID(value int64) (RevisionID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRevisionID, value)
	}
	return RevisionID(value), nil
}

// Int64 returns the revision identifier as an int64.
func (id RevisionID) Int64() int64 {
	return int64(id)
}

// Document models the single authoritative revision of a logical document.
// At most one row exists per document id; it always reflects the content
// accepted by the most recent successful write.
type Document struct {
	DocumentID      string `gorm:"column:document_id;primaryKey;size:190;not null"`
	Content         string `gorm:"column:content;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Revision stores an append-only archive entry: the content that was current
// immediately before being overwritten, carrying the logical timestamp the
// content held while current (not the archival wall-clock time).
type Revision struct {
	RevisionID      int64  `gorm:"column:revision_id;primaryKey;autoIncrement"`
	DocumentID      string `gorm:"column:document_id;size:190;not null;index:idx_revisions_document_created,priority:1"`
	Content         string `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_revisions_document_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Revision) TableName() string {
	return "document_revisions"
}

// RevisionSummary is a content-free listing entry for the history surface.
type RevisionSummary struct {
	RevisionID      int64 `gorm:"column:revision_id" json:"id"`
	CreatedAtMillis int64 `gorm:"column:created_at_ms" json:"created_at"`
}

// PushRequest describes the input supplied by a client during sync.
type PushRequest struct {
	DocumentID      DocumentID
	Content         string
	ClientTimestamp LogicalTimestamp
}

// SyncStatus enumerates the terminal outcomes of a sync call.
type SyncStatus string

const (
	// SyncStatusSynced reports that the client's view matches the accepted current revision.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusConflict reports that the server holds a newer revision than the client knew about.
	SyncStatusConflict SyncStatus = "conflict"
)

// SyncResult is the outcome returned to the pushing client. On conflict,
// Content and Timestamp carry the server's current revision so the client can
// reconcile; on synced they echo the accepted values. Mutated distinguishes
// writes that changed the store from equal-timestamp no-ops, so callers can
// skip change notifications for silent polls.
type SyncResult struct {
	Status    SyncStatus
	Content   string
	Timestamp int64
	Mutated   bool
}
