package document

import "testing"

func TestResolveSyncFirstWriteInsertsDocument(t *testing.T) {
	push := PushRequest{
		DocumentID:      mustDocumentID(t, "main"),
		Content:         "- buy milk",
		ClientTimestamp: mustTimestamp(t, 1700000000000),
	}

	outcome := resolveSync(nil, push, EqualTimestampNoop)

	if outcome.Decision != DecisionFirstWrite {
		t.Fatalf("expected first-write decision, got %d", outcome.Decision)
	}
	if outcome.Archived != nil {
		t.Fatalf("first write must not archive anything")
	}
	if outcome.Updated == nil || outcome.Updated.Content != "- buy milk" {
		t.Fatalf("unexpected updated row: %#v", outcome.Updated)
	}
	if outcome.Updated.UpdatedAtMillis != 1700000000000 {
		t.Fatalf("unexpected updated timestamp: %d", outcome.Updated.UpdatedAtMillis)
	}
	if outcome.Result.Status != SyncStatusSynced || outcome.Result.Timestamp != 1700000000000 {
		t.Fatalf("unexpected result: %#v", outcome.Result)
	}
	if !outcome.Result.Mutated {
		t.Fatalf("first write must report a mutation")
	}
}

func TestResolveSyncNewerClientArchivesStoredRevision(t *testing.T) {
	stored := &Document{
		DocumentID:      "main",
		Content:         "- old list",
		UpdatedAtMillis: 1700000000000,
	}
	push := PushRequest{
		DocumentID:      mustDocumentID(t, "main"),
		Content:         "- new list",
		ClientTimestamp: mustTimestamp(t, 1700000005000),
	}

	outcome := resolveSync(stored, push, EqualTimestampNoop)

	if outcome.Decision != DecisionAccept {
		t.Fatalf("expected accept decision, got %d", outcome.Decision)
	}
	if outcome.Archived == nil {
		t.Fatalf("expected superseded revision to be archived")
	}
	if outcome.Archived.Content != "- old list" {
		t.Fatalf("archive must carry the overwritten content, got %q", outcome.Archived.Content)
	}
	if outcome.Archived.CreatedAtMillis != 1700000000000 {
		t.Fatalf("archive must carry the timestamp the content held while current, got %d", outcome.Archived.CreatedAtMillis)
	}
	if outcome.Updated.Content != "- new list" || outcome.Updated.UpdatedAtMillis != 1700000005000 {
		t.Fatalf("unexpected updated row: %#v", outcome.Updated)
	}
	if outcome.Result.Status != SyncStatusSynced || outcome.Result.Timestamp != 1700000005000 {
		t.Fatalf("unexpected result: %#v", outcome.Result)
	}
	if !outcome.Result.Mutated {
		t.Fatalf("accepted overwrite must report a mutation")
	}
}

func TestResolveSyncStaleClientReturnsStoredRevision(t *testing.T) {
	stored := &Document{
		DocumentID:      "main",
		Content:         "- server list",
		UpdatedAtMillis: 1700000009000,
	}
	push := PushRequest{
		DocumentID:      mustDocumentID(t, "main"),
		Content:         "- stale list",
		ClientTimestamp: mustTimestamp(t, 1700000001000),
	}

	outcome := resolveSync(stored, push, EqualTimestampNoop)

	if outcome.Decision != DecisionConflict {
		t.Fatalf("expected conflict decision, got %d", outcome.Decision)
	}
	if outcome.Updated != nil || outcome.Archived != nil {
		t.Fatalf("stale write must not mutate anything")
	}
	if outcome.Result.Status != SyncStatusConflict {
		t.Fatalf("unexpected status: %s", outcome.Result.Status)
	}
	if outcome.Result.Content != "- server list" || outcome.Result.Timestamp != 1700000009000 {
		t.Fatalf("conflict must surface the stored revision, got %#v", outcome.Result)
	}
	if outcome.Result.Mutated {
		t.Fatalf("rejected write must not report a mutation")
	}
}

func TestResolveSyncEqualTimestampFollowsPolicy(t *testing.T) {
	stored := &Document{
		DocumentID:      "main",
		Content:         "- shared list",
		UpdatedAtMillis: 1700000002000,
	}
	push := PushRequest{
		DocumentID:      mustDocumentID(t, "main"),
		Content:         "- shared list",
		ClientTimestamp: mustTimestamp(t, 1700000002000),
	}

	tests := []struct {
		name         string
		policy       EqualTimestampPolicy
		wantDecision MergeDecision
		wantStatus   SyncStatus
	}{
		{
			name:         "noop-policy",
			policy:       EqualTimestampNoop,
			wantDecision: DecisionNoop,
			wantStatus:   SyncStatusSynced,
		},
		{
			name:         "conflict-policy",
			policy:       EqualTimestampConflict,
			wantDecision: DecisionConflict,
			wantStatus:   SyncStatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := resolveSync(stored, push, tt.policy)
			if outcome.Decision != tt.wantDecision {
				t.Fatalf("unexpected decision: %d", outcome.Decision)
			}
			if outcome.Updated != nil || outcome.Archived != nil {
				t.Fatalf("equal timestamp must never mutate the store")
			}
			if outcome.Result.Status != tt.wantStatus {
				t.Fatalf("unexpected status: %s", outcome.Result.Status)
			}
			if outcome.Result.Timestamp != 1700000002000 {
				t.Fatalf("result must echo the stored timestamp, got %d", outcome.Result.Timestamp)
			}
			if outcome.Result.Mutated {
				t.Fatalf("equal timestamp must not report a mutation")
			}
		})
	}
}

func TestResolveSyncAcceptsEmptyContent(t *testing.T) {
	stored := &Document{
		DocumentID:      "main",
		Content:         "- everything done",
		UpdatedAtMillis: 1700000002000,
	}
	push := PushRequest{
		DocumentID:      mustDocumentID(t, "main"),
		Content:         "",
		ClientTimestamp: mustTimestamp(t, 1700000003000),
	}

	outcome := resolveSync(stored, push, EqualTimestampNoop)

	if outcome.Decision != DecisionAccept {
		t.Fatalf("empty content is a valid document, got decision %d", outcome.Decision)
	}
	if outcome.Updated.Content != "" {
		t.Fatalf("expected empty content to be accepted, got %q", outcome.Updated.Content)
	}
	if outcome.Archived.Content != "- everything done" {
		t.Fatalf("unexpected archived content: %q", outcome.Archived.Content)
	}
}

func TestParseEqualTimestampPolicy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EqualTimestampPolicy
		wantErr bool
	}{
		{name: "empty-defaults-to-noop", input: "", want: EqualTimestampNoop},
		{name: "noop", input: "noop", want: EqualTimestampNoop},
		{name: "conflict", input: " Conflict ", want: EqualTimestampConflict},
		{name: "unknown", input: "merge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := ParseEqualTimestampPolicy(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if policy != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, policy)
			}
		})
	}
}
