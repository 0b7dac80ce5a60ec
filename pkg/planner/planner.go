// Package planner computes which work items still need harvesting.
package planner

import "pageharvest/pkg/models"

// Exister answers whether an artifact already exists for an id
type Exister interface {
	Exists(id string) bool
}

// Plan returns the items without an artifact, in manifest order
func Plan(items []models.WorkItem, store Exister) []models.WorkItem {
	pending := make([]models.WorkItem, 0, len(items))
	for _, item := range items {
		if !store.Exists(item.ID) {
			pending = append(pending, item)
		}
	}
	return pending
}

// Outcome distinguishes the ways a plan can come out empty
type Outcome int

const (
	// OutcomeWork means there are items to fetch
	OutcomeWork Outcome = iota
	// OutcomeEmptyManifest means the manifest listed nothing
	OutcomeEmptyManifest
	// OutcomeAllHarvested means every listed item already has an artifact
	OutcomeAllHarvested
)

// Classify reports why a run would or would not have work
func Classify(manifestSize, planSize int) Outcome {
	switch {
	case manifestSize == 0:
		return OutcomeEmptyManifest
	case planSize == 0:
		return OutcomeAllHarvested
	default:
		return OutcomeWork
	}
}

// Message is the operator-facing line for a zero-work outcome
func (o Outcome) Message() string {
	switch o {
	case OutcomeEmptyManifest:
		return "manifest is empty, nothing to harvest"
	case OutcomeAllHarvested:
		return "all items already harvested"
	default:
		return ""
	}
}
