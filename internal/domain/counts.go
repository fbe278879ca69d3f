package domain

import "fmt"

// Counts is an aggregate snapshot of queue progress.
type Counts struct {
	// Total is the number of cases in the store
	Total int64 `json:"total"`

	// InProgress is the number of claimed cases without a result
	InProgress int64 `json:"in_progress"`

	// Finished is the number of cases with a result
	Finished int64 `json:"finished"`
}

// Pending returns the number of cases nobody has claimed yet.
func (c Counts) Pending() int64 {
	return c.Total - c.InProgress - c.Finished
}

// Percent returns the finished share in percent, 0 for an empty store.
func (c Counts) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return 100 * float64(c.Finished) / float64(c.Total)
}

// String formats the counts the way the progress line prints them.
func (c Counts) String() string {
	return fmt.Sprintf("Progressing/Finished/Total %d/%d/%d (%.2f%%)",
		c.InProgress, c.Finished, c.Total, c.Percent())
}
