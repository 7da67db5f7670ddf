package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(level []*MixedEntity) []string {
	keys := make([]string, 0, len(level))
	for _, m := range level {
		keys = append(keys, m.Key)
	}
	return keys
}

func decided(key string, decision Decision) *MixedEntity {
	return &MixedEntity{Key: key, Decision: decision}
}

func TestSplit_Phases(t *testing.T) {
	plan := SyncPlan{
		"a/":         decided("a/", DecisionFolderExistedLocal),
		"a/b/":       decided("a/b/", DecisionFolderToBeCreated),
		"c/":         decided("c/", DecisionFolderExistedRemote),
		"a/b/x.md":   decided("a/b/x.md", DecisionCreatedLocal),
		"top.md":     decided("top.md", DecisionModifiedRemote),
		"gone/":      decided("gone/", DecisionFolderToBeDeleted),
		"gone/y.md":  decided("gone/y.md", DecisionDeletedLocal),
		"hist.md":    decided("hist.md", DecisionOnlyHistory),
		"same.md":    decided("same.md", DecisionEqual),
		"skip/":      decided("skip/", DecisionFolderToSkip),
		"both/":      decided("both/", DecisionFolderExistedBoth),
		"z/q/r.md":   decided("z/q/r.md", DecisionConflictCreatedKeepRemote),
		"z/q/old.md": decided("z/q/old.md", DecisionDeletedRemote),
	}

	ep, err := Split(plan)
	require.NoError(t, err)

	require.Len(t, ep.FolderCreation, 2)
	assert.Equal(t, []string{"a/", "c/"}, keysOf(ep.FolderCreation[0]))
	assert.Equal(t, []string{"a/b/"}, keysOf(ep.FolderCreation[1]))

	require.Len(t, ep.Deletion, 3)
	assert.Equal(t, []string{"z/q/old.md"}, keysOf(ep.Deletion[0]))
	assert.Equal(t, []string{"gone/y.md"}, keysOf(ep.Deletion[1]))
	assert.Equal(t, []string{"gone/", "hist.md"}, keysOf(ep.Deletion[2]))

	require.Len(t, ep.Transfer, 1)
	assert.Equal(t, []string{"a/b/x.md", "top.md", "z/q/r.md"}, keysOf(ep.Transfer[0]))

	assert.Equal(t, 10, ep.TotalCount)
	assert.False(t, ep.Empty())
}

func TestSplit_NoopOnly(t *testing.T) {
	ep, err := Split(SyncPlan{
		"a.md": decided("a.md", DecisionEqual),
		"d/":   decided("d/", DecisionFolderToSkip),
	})
	require.NoError(t, err)

	assert.True(t, ep.Empty())
	assert.Empty(t, ep.FolderCreation)
	assert.Empty(t, ep.Deletion)
	assert.Empty(t, ep.Transfer)
}

func TestSplit_Undecided(t *testing.T) {
	_, err := Split(SyncPlan{"a.md": {Key: "a.md"}})
	require.ErrorIs(t, err, ErrUndecided)

	_, err = Split(SyncPlan{"a.md": decided("a.md", "teleport")})
	require.ErrorIs(t, err, ErrUnknownDecision)
	assert.Contains(t, err.Error(), "teleport")
}

func TestDecision_Category(t *testing.T) {
	assert.Equal(t, CategoryNoop, DecisionEqual.Category())
	assert.Equal(t, CategoryFolderCreation, DecisionFolderToBeCreated.Category())
	assert.Equal(t, CategoryDeletion, DecisionOnlyHistory.Category())
	assert.Equal(t, CategoryTransfer, DecisionConflictModifiedKeepBoth.Category())
	assert.Equal(t, CategoryUnknown, Decision("teleport").Category())
	assert.Equal(t, "folder_creation", CategoryFolderCreation.String())
}
