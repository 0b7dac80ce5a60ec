package models

import "time"

// WorkItem is one unit of work from the manifest. Identity is ID.
type WorkItem struct {
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ItemState tracks a work item through a run
type ItemState string

const (
	StatePending   ItemState = "pending"
	StateFetching  ItemState = "fetching"
	StateSucceeded ItemState = "succeeded"
	StateFailed    ItemState = "failed"
)

// Terminal reports whether no further transition is possible
func (s ItemState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ItemOutcome is the result of attempting one item
type ItemOutcome struct {
	ItemID    string        `json:"item_id"`
	URL       string        `json:"url"`
	State     ItemState     `json:"state"`
	ErrorType string        `json:"error_type,omitempty"`
	Error     string        `json:"error,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Failure pairs an item id with the reason it failed
type Failure struct {
	ItemID    string `json:"item_id"`
	ErrorType string `json:"error_type"`
	Reason    string `json:"reason"`
}
