package document

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultHistoryLimit bounds ListRevisions when the caller asks for more
	// or does not say how many entries it wants.
	DefaultHistoryLimit = 50
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps a store-layer failure with a dot-separated operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "document.service.new"
	opSync            = "document.sync"
	opListRevisions   = "document.list_revisions"
	opRevisionContent = "document.revision_content"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies for the document engine.
type ServiceConfig struct {
	Database             *gorm.DB
	EqualTimestampPolicy EqualTimestampPolicy
	HistoryLimit         int
	Logger               *zap.Logger
}

// Service implements the authoritative sync and history operations. Writes for
// one document id are serialized by the surrounding transaction and row lock;
// history reads may proceed concurrently since the archive is append-only.
type Service struct {
	db           *gorm.DB
	policy       EqualTimestampPolicy
	historyLimit int
	logger       *zap.Logger
}

// NewService validates the configuration and constructs the document engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	policy := cfg.EqualTimestampPolicy
	if policy == "" {
		policy = EqualTimestampNoop
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 || historyLimit > DefaultHistoryLimit {
		historyLimit = DefaultHistoryLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:           cfg.Database,
		policy:       policy,
		historyLimit: historyLimit,
		logger:       logger,
	}, nil
}

// Sync applies one push under the last-write-wins rule. The read of the
// current row, the archival of a superseded revision, and the overwrite run
// inside a single transaction with the row locked, so two simultaneous
// writers cannot both pass the newer-than check and lose an archive entry.
func (s *Service) Sync(ctx context.Context, push PushRequest) (SyncResult, error) {
	if s.db == nil {
		s.logError(opSync, "missing_database", errMissingDatabase)
		return SyncResult{}, newServiceError(opSync, "missing_database", errMissingDatabase)
	}

	var result SyncResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored Document
		var storedPtr *Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ?", push.DocumentID.String()).
			Take(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			storedPtr = nil
		} else if err != nil {
			s.logError(opSync, "document_select_failed", err,
				zap.String("document_id", push.DocumentID.String()))
			return newServiceError(opSync, "document_select_failed", err)
		} else {
			storedPtr = &stored
		}

		outcome := resolveSync(storedPtr, push, s.policy)
		result = outcome.Result

		if outcome.Archived != nil {
			if err := tx.Create(outcome.Archived).Error; err != nil {
				s.logError(opSync, "revision_insert_failed", err,
					zap.String("document_id", push.DocumentID.String()))
				return newServiceError(opSync, "revision_insert_failed", err)
			}
		}

		if outcome.Updated != nil {
			if err := tx.Save(outcome.Updated).Error; err != nil {
				s.logError(opSync, "document_save_failed", err,
					zap.String("document_id", push.DocumentID.String()))
				return newServiceError(opSync, "document_save_failed", err)
			}
		}

		return nil
	})
	if txErr != nil {
		return SyncResult{}, txErr
	}

	return result, nil
}

// ListRevisions returns archive entries for the document, newest first,
// without content payloads. The limit is clamped to the configured bound.
func (s *Service) ListRevisions(ctx context.Context, documentID DocumentID, limit int) ([]RevisionSummary, error) {
	if s.db == nil {
		s.logError(opListRevisions, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListRevisions, "missing_database", errMissingDatabase)
	}

	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	var summaries []RevisionSummary
	if err := s.db.WithContext(ctx).
		Model(&Revision{}).
		Where("document_id = ?", documentID.String()).
		Order("created_at_ms DESC").
		Limit(limit).
		Find(&summaries).Error; err != nil {
		s.logError(opListRevisions, "query_failed", err,
			zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListRevisions, "query_failed", err)
	}

	return summaries, nil
}

// RevisionContent returns the archived content for one revision id. An
// unknown id yields empty content and no error: "no content for this id" is a
// valid terminal answer, not a failure.
func (s *Service) RevisionContent(ctx context.Context, revisionID RevisionID) (string, error) {
	if s.db == nil {
		s.logError(opRevisionContent, "missing_database", errMissingDatabase)
		return "", newServiceError(opRevisionContent, "missing_database", errMissingDatabase)
	}

	var revision Revision
	err := s.db.WithContext(ctx).
		Where("revision_id = ?", revisionID.Int64()).
		Take(&revision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		s.logError(opRevisionContent, "query_failed", err,
			zap.Int64("revision_id", revisionID.Int64()))
		return "", newServiceError(opRevisionContent, "query_failed", err)
	}

	return revision.Content, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("document service error", attrs...)
}
