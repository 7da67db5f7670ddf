package sync

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFilter_Defaults(t *testing.T) {
	filter, err := NewNameFilter(FilterOptions{})
	require.NoError(t, err)

	tests := []struct {
		key  string
		skip bool
	}{
		{"notes/a.md", false},
		{"notes/", false},
		{"a.md", false},
		{".hidden.md", true},
		{"notes/.trash/", true},
		{"notes/.trash/x.md", true},
		{"_private/x.md", true},
		{"notes/_draft.md", true},
		{"node_modules/pkg/index.js", true},
		{"photos/.DS_Store", true},
		{"Desktop.ini", true},
		{"sub/thumbs.db", true},
		{MetadataFileName, true},
		{MetadataFileNameBin, true},
		{"under_score_inside.md", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.skip, filter.Skip(tt.key), "key %q", tt.key)
	}
}

func TestNameFilter_UnderscoreItems(t *testing.T) {
	filter, err := NewNameFilter(FilterOptions{SyncUnderscoreItems: true})
	require.NoError(t, err)

	assert.False(t, filter.Skip("_private/x.md"))
	assert.False(t, filter.Skip("notes/_draft.md"))
	assert.True(t, filter.Skip(MetadataFileName), "reserved names stay excluded")
}

func TestNameFilter_IgnorePathsMatchWholeKey(t *testing.T) {
	filter, err := NewNameFilter(FilterOptions{IgnorePaths: []string{`tmp/.*`, `.*\.log`, ""}})
	require.NoError(t, err)

	assert.True(t, filter.Skip("tmp/a.md"))
	assert.True(t, filter.Skip("tmp/"))
	assert.True(t, filter.Skip("deep/debug.log"))
	assert.False(t, filter.Skip("notes/tmp/a.md"), "pattern is anchored at the start")
	assert.False(t, filter.Skip("debug.log.md"), "pattern is anchored at the end")
}

func TestNameFilter_InvalidPattern(t *testing.T) {
	_, err := NewNameFilter(FilterOptions{IgnorePaths: []string{"("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestNameFilter_ConfigDirOverride(t *testing.T) {
	opts := FilterOptions{
		ConfigDir:   ".obsidian/",
		IgnorePaths: []string{`\.obsidian/cache/.*`},
	}

	filter, err := NewNameFilter(opts)
	require.NoError(t, err)
	assert.True(t, filter.Skip(".obsidian/app.json"), "hidden without the override")

	opts.SyncConfigDir = true
	filter, err = NewNameFilter(opts)
	require.NoError(t, err)

	assert.False(t, filter.Skip(".obsidian/"))
	assert.False(t, filter.Skip(".obsidian/app.json"))
	assert.False(t, filter.Skip(".obsidian/cache/x"), "override wins over exclusions")
	assert.True(t, filter.Skip(".obsidianx/app.json"), "prefix must end at a segment")
	assert.True(t, filter.Skip(".git/config"))
}

func TestNameFilter_IgnoreLines(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, IgnoreFileName, []byte(`
# build output
build/
*.tmp

`), 0o644))

	lines, err := LoadIgnoreLines(fs, IgnoreFileName)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/", "*.tmp"}, lines)

	filter, err := NewNameFilter(FilterOptions{IgnoreLines: lines})
	require.NoError(t, err)

	assert.True(t, filter.Skip("build/out.bin"))
	assert.True(t, filter.Skip("notes/scratch.tmp"))
	assert.False(t, filter.Skip("notes/a.md"))
}

func TestLoadIgnoreLines_Missing(t *testing.T) {
	lines, err := LoadIgnoreLines(memfs.New(), IgnoreFileName)
	require.NoError(t, err)
	assert.Nil(t, lines)
}
