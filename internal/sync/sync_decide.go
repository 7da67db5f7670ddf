package sync

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

type DecideOptions struct {
	EmptyFolder EmptyFolderPolicy
	// SkipSizeLargerThan is the at-rest size ceiling for transfers, <= 0 disables it
	SkipSizeLargerThan int64
	ConflictAction     ConflictAction
}

// Decide assigns a decision and a branch number to every entry of plan, deepest path first,
// so a folder already knows whether anything below it was kept. It only mutates plan and
// has no side effects.
func Decide(plan SyncPlan, opts DecideOptions) (SyncPlan, error) {
	if err := opts.EmptyFolder.Validate(); err != nil {
		return nil, err
	}
	if err := opts.ConflictAction.Validate(); err != nil {
		return nil, err
	}

	d := &decider{opts: opts, kept: mapset.NewThreadUnsafeSet[string]()}
	for _, key := range plan.SortedKeys() {
		m := plan[key]
		var err error
		if isFolderKey(key) {
			err = d.decideFolder(m)
		} else {
			err = d.decideFile(m)
		}
		if err != nil {
			return nil, err
		}
		if m.Decision == "" {
			return nil, fmt.Errorf("%w: %s", ErrUndecided, m)
		}
	}

	d.kept.Remove("/")
	d.kept.Remove("")
	if d.kept.Cardinality() > 0 {
		left := d.kept.ToSlice()
		slices.Sort(left)
		return nil, fmt.Errorf("%w: retained folders without a decision: %v", ErrInvariant, left)
	}

	return plan, nil
}

type decider struct {
	opts DecideOptions
	// folders that must exist on both sides because something below them is kept
	kept mapset.Set[string]
}

func (d *decider) set(m *MixedEntity, decision Decision, branch int) {
	m.Decision = decision
	m.DecisionBranch = branch
}

func (d *decider) keep(m *MixedEntity, decision Decision, branch int) {
	d.set(m, decision, branch)
	d.kept.Add(parentFolder(m.Key))
}

func (d *decider) withinLimit(size int64) bool {
	return d.opts.SkipSizeLargerThan <= 0 || size <= d.opts.SkipSizeLargerThan
}

func (d *decider) keepWithinLimit(m *MixedEntity, side *Entity, decision Decision, branch int) error {
	if !d.withinLimit(side.SizeEnc) {
		return fmt.Errorf("%w: %s (branch %d) exceeds %d: %s",
			ErrSizeLimit, decision, branch, d.opts.SkipSizeLargerThan, m)
	}
	d.keep(m, decision, branch)
	return nil
}

func (d *decider) decideFolder(m *MixedEntity) error {
	if d.kept.Contains(m.Key) {
		switch {
		case m.Local != nil && m.Remote != nil:
			d.set(m, DecisionFolderExistedBoth, 101)
		case m.Local != nil:
			d.set(m, DecisionFolderExistedLocal, 102)
		case m.Remote != nil:
			d.set(m, DecisionFolderExistedRemote, 103)
		default:
			d.set(m, DecisionFolderToBeCreated, 104)
		}
		d.kept.Remove(m.Key)
		// a kept folder keeps its parent too, even when no file sits directly in the parent
		d.kept.Add(parentFolder(m.Key))
		return nil
	}

	switch d.opts.EmptyFolder {
	case EmptyFolderSkip:
		d.set(m, DecisionFolderToSkip, 105)
	case EmptyFolderCleanBoth:
		d.set(m, DecisionFolderToBeDeleted, 106)
	default:
		return fmt.Errorf("unknown empty folder policy %q for %s", d.opts.EmptyFolder, m.Key)
	}
	return nil
}

func (d *decider) decideFile(m *MixedEntity) error {
	local, prev, remote := m.Local, m.PrevSync, m.Remote

	switch {
	case local == nil && remote == nil:
		d.set(m, DecisionOnlyHistory, 1)
		return nil

	case local == nil:
		switch {
		case prev == nil:
			return d.keepWithinLimit(m, remote, DecisionCreatedRemote, 3)
		case remoteEqualPrev(remote, prev):
			d.set(m, DecisionDeletedLocal, 4)
			return nil
		default:
			return d.keepWithinLimit(m, remote, DecisionModifiedRemote, 5)
		}

	case remote == nil:
		switch {
		case prev == nil:
			return d.keepWithinLimit(m, local, DecisionCreatedLocal, 6)
		case localEqualPrev(local, prev):
			d.set(m, DecisionDeletedRemote, 7)
			return nil
		default:
			return d.keepWithinLimit(m, local, DecisionModifiedLocal, 8)
		}
	}

	if sidesEqual(local, remote) {
		d.keep(m, DecisionEqual, 2)
		return nil
	}

	localSame := localEqualPrev(local, prev)
	remoteSame := remoteEqualPrev(remote, prev)
	switch {
	case localSame && !remoteSame:
		return d.keepWithinLimit(m, remote, DecisionModifiedRemote, 9)
	case !localSame && remoteSame:
		return d.keepWithinLimit(m, local, DecisionModifiedLocal, 10)
	case !localSame && !remoteSame:
		d.resolveConflict(m)
		return nil
	}
	return fmt.Errorf("%w: both sides match history but differ from each other: %s", ErrInvariant, m)
}

func (d *decider) resolveConflict(m *MixedEntity) {
	local, remote := m.Local, m.Remote

	// branches 11-15 without history, 16-20 with
	created := m.PrevSync == nil
	keepLocal, keepRemote, keepBoth := DecisionConflictModifiedKeepLocal, DecisionConflictModifiedKeepRemote, DecisionConflictModifiedKeepBoth
	base := 16
	if created {
		keepLocal, keepRemote, keepBoth = DecisionConflictCreatedKeepLocal, DecisionConflictCreatedKeepRemote, DecisionConflictCreatedKeepBoth
		base = 11
	}

	switch d.opts.ConflictAction {
	case ConflictKeepNewer:
		if local.Mtime() >= remote.Mtime() {
			d.keep(m, keepLocal, base)
		} else {
			d.keep(m, keepRemote, base+1)
		}
	case ConflictKeepLarger:
		if local.SizeEnc >= remote.SizeEnc {
			d.keep(m, keepLocal, base+2)
		} else {
			d.keep(m, keepRemote, base+3)
		}
	default:
		d.keep(m, keepBoth, base+4)
	}
}

func sidesEqual(local, remote *Entity) bool {
	return (local.MtimeCli == remote.MtimeCli || local.MtimeCli == remote.MtimeSvr) &&
		local.SizeEnc == remote.SizeEnc
}

func localEqualPrev(local, prev *Entity) bool {
	return prev != nil &&
		prev.MtimeSvr == local.MtimeCli &&
		prev.SizeEnc == local.SizeEnc
}

func remoteEqualPrev(remote, prev *Entity) bool {
	return prev != nil &&
		(prev.MtimeSvr == remote.MtimeCli || prev.MtimeSvr == remote.MtimeSvr) &&
		prev.SizeEnc == remote.SizeEnc
}
