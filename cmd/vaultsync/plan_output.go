package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/sync"
)

type planEntry struct {
	Key      string        `json:"key"`
	Decision sync.Decision `json:"decision"`
	Branch   int           `json:"branch"`
	Category string        `json:"category"`
}

type planOutput struct {
	RunID      string      `json:"runId"`
	DryRun     bool        `json:"dryRun"`
	TotalCount int         `json:"totalCount"`
	Entries    []planEntry `json:"entries"`
}

func newPlanOutput(result *sync.RunResult, all bool) *planOutput {
	out := &planOutput{
		RunID:   result.RunID,
		DryRun:  result.DryRun,
		Entries: []planEntry{},
	}
	if result.Steps != nil {
		out.TotalCount = result.Steps.TotalCount
	}
	for _, key := range result.Plan.SortedKeys() {
		m := result.Plan[key]
		category := m.Decision.Category()
		if category == sync.CategoryNoop && !all {
			continue
		}
		out.Entries = append(out.Entries, planEntry{
			Key:      key,
			Decision: m.Decision,
			Branch:   m.DecisionBranch,
			Category: category.String(),
		})
	}
	return out
}

func categoryStyle(category string) lipgloss.Style {
	switch category {
	case sync.CategoryTransfer.String():
		return green
	case sync.CategoryDeletion.String():
		return red
	case sync.CategoryFolderCreation.String():
		return cyan
	}
	return gray
}

func printPlan(w io.Writer, out *planOutput) {
	if len(out.Entries) == 0 {
		fmt.Fprintln(w, gray.Render("nothing to do"))
		return
	}

	width := 0
	for _, e := range out.Entries {
		width = max(width, len(e.Decision))
	}
	for _, e := range out.Entries {
		decision := fmt.Sprintf("%-*s", width, e.Decision)
		fmt.Fprintf(w, "%s  %s %s\n",
			categoryStyle(e.Category).Render(decision),
			e.Key,
			lightGray.Render(fmt.Sprintf("(#%d)", e.Branch)),
		)
	}
}

func printSummary(w io.Writer, result *sync.RunResult) {
	var folders, deletions, transfers int
	if steps := result.Steps; steps != nil {
		for _, level := range steps.FolderCreation {
			folders += len(level)
		}
		for _, level := range steps.Deletion {
			deletions += len(level)
		}
		for _, level := range steps.Transfer {
			transfers += len(level)
		}
	}

	verb := "synced"
	if result.DryRun {
		verb = "planned"
	}
	fmt.Fprintf(w, "%s %s, %s, %s in %s\n",
		green.Render(verb),
		cyan.Render(fmt.Sprintf("%d folder(s)", folders)),
		red.Render(fmt.Sprintf("%d deletion(s)", deletions)),
		green.Render(fmt.Sprintf("%d transfer(s)", transfers)),
		humanize.SIWithDigits(result.Duration.Seconds(), 2, "s"),
	)
}
