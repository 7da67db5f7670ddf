package sync

import "fmt"

// Decision is the single action taken for one logical path.
type Decision string

const (
	DecisionOnlyHistory    Decision = "only_history"
	DecisionEqual          Decision = "equal"
	DecisionCreatedLocal   Decision = "created_local"
	DecisionCreatedRemote  Decision = "created_remote"
	DecisionDeletedLocal   Decision = "deleted_local"
	DecisionDeletedRemote  Decision = "deleted_remote"
	DecisionModifiedLocal  Decision = "modified_local"
	DecisionModifiedRemote Decision = "modified_remote"

	DecisionConflictCreatedKeepLocal   Decision = "conflict_created_keep_local"
	DecisionConflictCreatedKeepRemote  Decision = "conflict_created_keep_remote"
	DecisionConflictCreatedKeepBoth    Decision = "conflict_created_keep_both"
	DecisionConflictModifiedKeepLocal  Decision = "conflict_modified_keep_local"
	DecisionConflictModifiedKeepRemote Decision = "conflict_modified_keep_remote"
	DecisionConflictModifiedKeepBoth   Decision = "conflict_modified_keep_both"

	DecisionFolderExistedBoth   Decision = "folder_existed_both"
	DecisionFolderExistedLocal  Decision = "folder_existed_local"
	DecisionFolderExistedRemote Decision = "folder_existed_remote"
	DecisionFolderToBeCreated   Decision = "folder_to_be_created"
	DecisionFolderToSkip        Decision = "folder_to_skip"
	DecisionFolderToBeDeleted   Decision = "folder_to_be_deleted"
)

// Category says which execution phase a decision belongs to.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNoop
	CategoryFolderCreation
	CategoryDeletion
	CategoryTransfer
)

func (c Category) String() string {
	switch c {
	case CategoryNoop:
		return "noop"
	case CategoryFolderCreation:
		return "folder_creation"
	case CategoryDeletion:
		return "deletion"
	case CategoryTransfer:
		return "transfer"
	}
	return "unknown"
}

func (d Decision) Category() Category {
	switch d {
	case DecisionEqual, DecisionFolderToSkip, DecisionFolderExistedBoth:
		return CategoryNoop
	case DecisionFolderExistedLocal, DecisionFolderExistedRemote, DecisionFolderToBeCreated:
		return CategoryFolderCreation
	case DecisionOnlyHistory, DecisionDeletedLocal, DecisionDeletedRemote, DecisionFolderToBeDeleted:
		return CategoryDeletion
	case DecisionModifiedLocal, DecisionModifiedRemote,
		DecisionCreatedLocal, DecisionCreatedRemote,
		DecisionConflictCreatedKeepLocal, DecisionConflictCreatedKeepRemote, DecisionConflictCreatedKeepBoth,
		DecisionConflictModifiedKeepLocal, DecisionConflictModifiedKeepRemote, DecisionConflictModifiedKeepBoth:
		return CategoryTransfer
	}
	return CategoryUnknown
}

// EmptyFolderPolicy controls folders that no retained entry lives in.
type EmptyFolderPolicy string

const (
	EmptyFolderSkip      EmptyFolderPolicy = "skip"
	EmptyFolderCleanBoth EmptyFolderPolicy = "clean_both"
)

func (p EmptyFolderPolicy) Validate() error {
	switch p {
	case EmptyFolderSkip, EmptyFolderCleanBoth:
		return nil
	}
	return fmt.Errorf("unknown empty folder policy %q", string(p))
}

// ConflictAction resolves paths changed on both sides since the last sync.
type ConflictAction string

const (
	ConflictKeepNewer  ConflictAction = "keep_newer"
	ConflictKeepLarger ConflictAction = "keep_larger"
	ConflictKeepBoth   ConflictAction = "keep_both"
)

func (a ConflictAction) Validate() error {
	switch a {
	case ConflictKeepNewer, ConflictKeepLarger, ConflictKeepBoth:
		return nil
	}
	return fmt.Errorf("unknown conflict action %q", string(a))
}
