package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/vaultsync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeText(t *testing.T, m tea.Model, text string) tea.Model {
	t.Helper()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestSyncModel_TracksProgress(t *testing.T) {
	var m tea.Model = newSyncModel(func() {})

	m, _ = m.Update(syncStatusMsg(sync.StatusSyncing))
	m, _ = m.Update(syncProgressMsg{done: 1, total: 4, key: "a.md", decision: sync.DecisionCreatedLocal})

	sm := m.(syncModel)
	assert.Equal(t, sync.StatusSyncing, sm.status)
	assert.InDelta(t, 0.25, sm.percent(), 0.001)
	assert.Contains(t, sm.View(), "a.md")
	assert.Contains(t, sm.View(), "1/4")

	m, cmd := m.Update(syncDoneMsg{err: errors.New("boom")})
	assert.True(t, isQuit(cmd))
	assert.Contains(t, m.View(), "boom")
}

func TestSyncModel_CtrlCCancelsOnce(t *testing.T) {
	calls := 0
	var m tea.Model = newSyncModel(func() { calls++ })

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.False(t, isQuit(cmd), "waits for the run to report back")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.Equal(t, 1, calls)
	assert.True(t, m.(syncModel).stopping)
	assert.Contains(t, m.View(), "stopping")
}

func TestPasswordModel_Confirms(t *testing.T) {
	var m tea.Model = newPasswordModel()

	m = typeText(t, m, "pw")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.(passwordModel).confirm)
	assert.NotContains(t, m.View(), "pw", "the password is never echoed")

	m = typeText(t, m, "pw")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, isQuit(cmd))

	pm := m.(passwordModel)
	assert.True(t, pm.submitted)
	assert.Equal(t, "pw", pm.first)
}

func TestPasswordModel_Mismatch(t *testing.T) {
	var m tea.Model = newPasswordModel()

	m = typeText(t, m, "one")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(t, m, "two")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, isQuit(cmd))

	pm := m.(passwordModel)
	assert.False(t, pm.confirm)
	assert.False(t, pm.submitted)
	assert.Equal(t, txtPasswordMismatch, pm.errMsg)
}

func TestPasswordModel_EscCancels(t *testing.T) {
	var m tea.Model = newPasswordModel()
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, isQuit(cmd))
	assert.False(t, m.(passwordModel).submitted)
}
