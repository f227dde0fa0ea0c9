package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

type staticFingerprints map[store.Fingerprint]store.DocID

func (s staticFingerprints) Export() map[store.Fingerprint]store.DocID { return s }

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	_, err := st.Insert(&store.Document{
		SourceRef:   store.SourceRef{ChannelID: "-100", ItemID: "1"},
		Title:       "alpha beta",
		TitleTokens: []string{"alpha", "beta", "alpha"},
		Fingerprint: store.Fingerprint{1},
		CreatedAt:   time.Unix(100, 0),
	})
	require.NoError(t, err)
	id, err := st.Insert(&store.Document{
		SourceRef:   store.SourceRef{ChannelID: "-100", ItemID: "2"},
		Title:       "gamma",
		TitleTokens: []string{"gamma"},
		Fingerprint: store.Fingerprint{2},
		CreatedAt:   time.Unix(200, 0),
	})
	require.NoError(t, err)
	require.NoError(t, st.Tombstone(id))
	return st
}

func TestConsistencyChecker_Clean(t *testing.T) {
	st := seededStore(t)
	checker := NewConsistencyChecker(st, staticFingerprints{{1}: 1, {2}: 2})

	result, err := checker.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Empty(t, result.Inconsistencies)

	ok, err := checker.QuickCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyChecker_FingerprintMismatch(t *testing.T) {
	st := seededStore(t)
	checker := NewConsistencyChecker(st, staticFingerprints{{1}: 2, {9}: 1})

	result, err := checker.Check(context.Background())
	require.NoError(t, err)

	types := map[InconsistencyType]int{}
	for _, issue := range result.Inconsistencies {
		types[issue.Type]++
	}
	// {1}->2 and {9}->1 are orphans; {2} is unregistered.
	assert.Equal(t, 2, types[InconsistencyOrphanFingerprint])
	assert.Equal(t, 1, types[InconsistencyMissingFingerprint])
}

func TestConsistencyChecker_QuickCheckAfterCompact(t *testing.T) {
	st := seededStore(t)
	st.Compact()

	ok, err := NewConsistencyChecker(st, nil).QuickCheck(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyChecker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConsistencyChecker(seededStore(t), nil).Check(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "orphan_posting", InconsistencyOrphanPosting.String())
	assert.Equal(t, "missing_posting", InconsistencyMissingPosting.String())
	assert.Equal(t, "unknown", InconsistencyType(99).String())
}
