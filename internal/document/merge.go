package document

import (
	"errors"
	"fmt"
	"strings"
)

// EqualTimestampPolicy selects how a push whose timestamp equals the stored
// timestamp is treated. The no-op variant keeps periodic polling silent when
// nothing has changed; the conflict variant forces the client to reconcile.
type EqualTimestampPolicy string

const (
	// EqualTimestampNoop accepts an equal-timestamp push without mutation.
	EqualTimestampNoop EqualTimestampPolicy = "noop"
	// EqualTimestampConflict reports an equal-timestamp push as a conflict.
	EqualTimestampConflict EqualTimestampPolicy = "conflict"
)

// ErrInvalidEqualTimestampPolicy indicates an unknown policy value.
var ErrInvalidEqualTimestampPolicy = errors.New("document: invalid equal timestamp policy")

// ParseEqualTimestampPolicy normalizes raw configuration input into a policy.
func ParseEqualTimestampPolicy(rawInput string) (EqualTimestampPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "", string(EqualTimestampNoop):
		return EqualTimestampNoop, nil
	case string(EqualTimestampConflict):
		return EqualTimestampConflict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEqualTimestampPolicy, rawInput)
	}
}

// MergeDecision enumerates the branches of the last-write-wins merge.
type MergeDecision int

const (
	// DecisionFirstWrite inserts the document because no row existed.
	DecisionFirstWrite MergeDecision = iota
	// DecisionAccept archives the stored revision and overwrites it.
	DecisionAccept
	// DecisionNoop leaves the store untouched and reports synced.
	DecisionNoop
	// DecisionConflict leaves the store untouched and returns the stored revision.
	DecisionConflict
)

// MergeOutcome captures the decision from resolveSync. Updated is the row to
// persist when the decision mutates the store; Archived is the revision to
// append before the overwrite, nil for every non-archiving branch.
type MergeOutcome struct {
	Decision MergeDecision
	Updated  *Document
	Archived *Revision
	Result   SyncResult
}

// resolveSync applies the last-write-wins ordering rule to one push against
// the stored row (nil when the document does not exist yet). It performs no
// persistence; the caller must apply Updated and Archived atomically.
func resolveSync(stored *Document, push PushRequest, policy EqualTimestampPolicy) MergeOutcome {
	clientTimestamp := push.ClientTimestamp.Int64()

	if stored == nil {
		inserted := &Document{
			DocumentID:      push.DocumentID.String(),
			Content:         push.Content,
			UpdatedAtMillis: clientTimestamp,
		}
		return MergeOutcome{
			Decision: DecisionFirstWrite,
			Updated:  inserted,
			Result: SyncResult{
				Status:    SyncStatusSynced,
				Content:   push.Content,
				Timestamp: clientTimestamp,
				Mutated:   true,
			},
		}
	}

	switch {
	case clientTimestamp > stored.UpdatedAtMillis:
		archived := &Revision{
			DocumentID:      stored.DocumentID,
			Content:         stored.Content,
			CreatedAtMillis: stored.UpdatedAtMillis,
		}
		updated := &Document{
			DocumentID:      stored.DocumentID,
			Content:         push.Content,
			UpdatedAtMillis: clientTimestamp,
		}
		return MergeOutcome{
			Decision: DecisionAccept,
			Updated:  updated,
			Archived: archived,
			Result: SyncResult{
				Status:    SyncStatusSynced,
				Content:   push.Content,
				Timestamp: clientTimestamp,
				Mutated:   true,
			},
		}
	case clientTimestamp == stored.UpdatedAtMillis && policy != EqualTimestampConflict:
		return MergeOutcome{
			Decision: DecisionNoop,
			Result: SyncResult{
				Status:    SyncStatusSynced,
				Content:   stored.Content,
				Timestamp: stored.UpdatedAtMillis,
			},
		}
	default:
		return MergeOutcome{
			Decision: DecisionConflict,
			Result: SyncResult{
				Status:    SyncStatusConflict,
				Content:   stored.Content,
				Timestamp: stored.UpdatedAtMillis,
			},
		}
	}
}
