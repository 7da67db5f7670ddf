package sync

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	IgnoreFileName = ".vaultsyncignore"

	MetadataFileName    = "_vaultsync-metadata-on-remote.json"
	MetadataFileNameBin = "_vaultsync-metadata-on-remote.bin"
)

// always skipped, matched against every path segment
var specialNamePatterns = []string{
	".git",
	".github",
	".gitlab",
	".svn",
	"node_modules",
	".DS_Store",
	"__MACOSX",
	"Icon\r",
	"[Dd]esktop.ini",
	"[Tt]humbs.db",
}

type FilterOptions struct {
	// SyncConfigDir lets ConfigDir through even though it is hidden or excluded
	SyncConfigDir bool
	ConfigDir     string

	SyncUnderscoreItems bool

	// IgnorePaths are regular expressions matched against the whole key
	IgnorePaths []string

	// IgnoreLines are gitignore rules, usually read from IgnoreFileName
	IgnoreLines []string
}

// NameFilter decides which logical keys take part in a sync at all.
type NameFilter struct {
	opts     FilterOptions
	patterns []*regexp.Regexp
	ignore   *gitignore.GitIgnore
}

func NewNameFilter(opts FilterOptions) (*NameFilter, error) {
	f := &NameFilter{opts: opts}

	for _, p := range opts.IgnorePaths {
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}

	if len(opts.IgnoreLines) > 0 {
		f.ignore = gitignore.CompileIgnoreLines(opts.IgnoreLines...)
	}

	f.opts.ConfigDir = strings.Trim(opts.ConfigDir, "/")
	return f, nil
}

func (f *NameFilter) Skip(key string) bool {
	if f.opts.SyncConfigDir && f.insideConfigDir(key) {
		return false
	}

	for _, re := range f.patterns {
		if re.MatchString(key) {
			return true
		}
	}
	if f.ignore != nil && f.ignore.MatchesPath(key) {
		return true
	}

	if key == MetadataFileName || key == MetadataFileNameBin {
		return true
	}

	for _, seg := range strings.Split(strings.Trim(key, "/"), "/") {
		if seg == "" {
			continue
		}
		if isSpecialName(seg) {
			return true
		}
		if strings.HasPrefix(seg, ".") {
			return true
		}
		if !f.opts.SyncUnderscoreItems && strings.HasPrefix(seg, "_") {
			return true
		}
	}
	return false
}

func (f *NameFilter) insideConfigDir(key string) bool {
	if f.opts.ConfigDir == "" {
		return false
	}
	k := strings.TrimSuffix(key, "/")
	return k == f.opts.ConfigDir || strings.HasPrefix(k, f.opts.ConfigDir+"/")
}

func isSpecialName(seg string) bool {
	for _, p := range specialNamePatterns {
		if ok, _ := doublestar.Match(p, seg); ok {
			return true
		}
	}
	return false
}

// LoadIgnoreLines reads gitignore-style rules from name in fs. A missing file yields no rules.
func LoadIgnoreLines(fs billy.Filesystem, name string) ([]string, error) {
	file, err := fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	slog.Debug("loaded ignore file", "path", name, "rules", len(lines))
	return lines, nil
}
