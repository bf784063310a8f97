package document

import (
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func mustTimestamp(t *testing.T, value int64) LogicalTimestamp {
	t.Helper()
	ts, err := NewLogicalTimestamp(value)
	if err != nil {
		t.Fatalf("unexpected timestamp error: %v", err)
	}
	return ts
}

func mustRevisionID(t *testing.T, value int64) RevisionID {
	t.Helper()
	id, err := NewRevisionID(value)
	if err != nil {
		t.Fatalf("unexpected revision id error: %v", err)
	}
	return id
}

func openTestDatabase(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&Document{}, &Revision{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, policy EqualTimestampPolicy) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:             db,
		EqualTimestampPolicy: policy,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}
