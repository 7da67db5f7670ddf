package sync

import (
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// Entity is one side's view of a logical path: the local tree, the remote store or the
// history journal. Timestamps are unix milliseconds, 0 means unknown.
type Entity struct {
	Key      string `json:"key"`
	KeyEnc   string `json:"keyEnc"`
	Size     int64  `json:"size"`
	SizeEnc  int64  `json:"sizeEnc"`
	MtimeCli int64  `json:"mtimeCli,omitempty"`
	MtimeSvr int64  `json:"mtimeSvr,omitempty"`
}

func (e *Entity) IsFolder() bool {
	return isFolderKey(e.Key)
}

// Mtime returns the most informative timestamp: client time, then server time, then 0.
func (e *Entity) Mtime() int64 {
	if e.MtimeCli != 0 {
		return e.MtimeCli
	}
	return e.MtimeSvr
}

// copyNormalized returns a copy with negative timestamps folded into "unknown".
func (e *Entity) copyNormalized() *Entity {
	c := *e
	if c.MtimeCli < 0 {
		c.MtimeCli = 0
	}
	if c.MtimeSvr < 0 {
		c.MtimeSvr = 0
	}
	return &c
}

// MixedEntity is the three-sided merge for one logical path plus the decision taken for it.
// A nil side means the path is absent there.
type MixedEntity struct {
	Key            string   `json:"key"`
	Local          *Entity  `json:"local,omitempty"`
	PrevSync       *Entity  `json:"prevSync,omitempty"`
	Remote         *Entity  `json:"remote,omitempty"`
	Decision       Decision `json:"decision,omitempty"`
	DecisionBranch int      `json:"decisionBranch,omitempty"`
}

func (m *MixedEntity) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return m.Key
	}
	return string(b)
}

// knownKeyEnc returns the at-rest key of whichever side has one, remote first.
func (m *MixedEntity) knownKeyEnc() string {
	for _, e := range []*Entity{m.Remote, m.Local, m.PrevSync} {
		if e != nil && e.KeyEnc != "" {
			return e.KeyEnc
		}
	}
	return ""
}

// SyncPlan maps a logical key to its merged entry.
type SyncPlan map[string]*MixedEntity

// SortedKeys returns the keys deepest first, ties broken by key. A folder is therefore
// visited after everything below it.
func (p SyncPlan) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if la, lb := levelOf(a), levelOf(b); la != lb {
			return lb - la
		}
		return strings.Compare(a, b)
	})
	return keys
}

func isFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// levelOf counts path segments: "a/" is 1, "a/b.md" and "a/b/" are 2.
func levelOf(key string) int {
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/") + 1
}

// parentFolder returns "a/b/" for "a/b/c.md" and "a/b/c/", and "/" at the top level.
func parentFolder(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

func sortByKey(entries []*MixedEntity) {
	slices.SortFunc(entries, func(a, b *MixedEntity) int {
		return strings.Compare(a.Key, b.Key)
	})
}
