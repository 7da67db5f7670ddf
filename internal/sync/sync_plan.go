package sync

import (
	"fmt"
	"slices"
)

// ExecutionPlan is a decided SyncPlan cut into the three ordered phases.
type ExecutionPlan struct {
	// FolderCreation levels run shallow to deep
	FolderCreation [][]*MixedEntity `json:"folderCreation"`
	// Deletion levels run deep to shallow
	Deletion [][]*MixedEntity `json:"deletion"`
	// Transfer has at most one level
	Transfer [][]*MixedEntity `json:"transfer"`
	// TotalCount counts every entry with a side effect
	TotalCount int `json:"totalCount"`
}

func (p *ExecutionPlan) Empty() bool {
	return p.TotalCount == 0
}

// Split partitions a decided plan. No-op decisions are left out.
func Split(plan SyncPlan) (*ExecutionPlan, error) {
	creation := map[int][]*MixedEntity{}
	deletion := map[int][]*MixedEntity{}
	var transfer []*MixedEntity
	total := 0

	for _, key := range plan.SortedKeys() {
		m := plan[key]
		switch m.Decision.Category() {
		case CategoryNoop:
			continue
		case CategoryFolderCreation:
			lvl := levelOf(key)
			creation[lvl] = append(creation[lvl], m)
		case CategoryDeletion:
			lvl := levelOf(key)
			deletion[lvl] = append(deletion[lvl], m)
		case CategoryTransfer:
			transfer = append(transfer, m)
		default:
			if m.Decision == "" {
				return nil, fmt.Errorf("%w: %s", ErrUndecided, m)
			}
			return nil, fmt.Errorf("%w %q for %s", ErrUnknownDecision, m.Decision, key)
		}
		total++
	}

	ep := &ExecutionPlan{
		FolderCreation: byLevel(creation, false),
		Deletion:       byLevel(deletion, true),
		TotalCount:     total,
	}
	if len(transfer) > 0 {
		sortByKey(transfer)
		ep.Transfer = [][]*MixedEntity{transfer}
	}
	return ep, nil
}

func byLevel(levels map[int][]*MixedEntity, deepestFirst bool) [][]*MixedEntity {
	nums := make([]int, 0, len(levels))
	for lvl := range levels {
		nums = append(nums, lvl)
	}
	slices.Sort(nums)
	if deepestFirst {
		slices.Reverse(nums)
	}

	out := make([][]*MixedEntity, 0, len(nums))
	for _, lvl := range nums {
		entries := levels[lvl]
		sortByKey(entries)
		out = append(out, entries)
	}
	return out
}
