package model

import "fmt"

// StepContribution stages the counters of one chunk before they are applied to a StepExecution.
// A contribution belongs to a single chunk and is not safe for concurrent use.
type StepContribution struct {
	readCount        int
	writeCount       int
	filterCount      int
	parentSkipCount  int
	readSkipCount    int
	writeSkipCount   int
	processSkipCount int
	exitStatus       ExitStatus
}

// NewStepContribution creates a zeroed contribution inheriting parentSkipCount.
func NewStepContribution(parentSkipCount int) *StepContribution {
	return &StepContribution{parentSkipCount: parentSkipCount, exitStatus: ExitStatusExecuting}
}

// ReadCount returns the items read in this chunk.
func (c *StepContribution) ReadCount() int { return c.readCount }

// WriteCount returns the items written in this chunk.
func (c *StepContribution) WriteCount() int { return c.writeCount }

// FilterCount returns the items filtered in this chunk.
func (c *StepContribution) FilterCount() int { return c.filterCount }

// ReadSkipCount returns the items skipped on read in this chunk.
func (c *StepContribution) ReadSkipCount() int { return c.readSkipCount }

// WriteSkipCount returns the items skipped on write in this chunk.
func (c *StepContribution) WriteSkipCount() int { return c.writeSkipCount }

// ProcessSkipCount returns the items skipped during processing in this chunk.
func (c *StepContribution) ProcessSkipCount() int { return c.processSkipCount }

// ExitStatus returns the exit status of this chunk.
func (c *StepContribution) ExitStatus() ExitStatus { return c.exitStatus }

// SetExitStatus sets the exit status of this chunk.
func (c *StepContribution) SetExitStatus(status ExitStatus) { c.exitStatus = status }

// IncrementReadCount adds one read item.
func (c *StepContribution) IncrementReadCount() { c.readCount++ }

// IncrementReadCountBy adds count read items.
func (c *StepContribution) IncrementReadCountBy(count int) { c.readCount += count }

// IncrementWriteCount adds count written items.
func (c *StepContribution) IncrementWriteCount(count int) { c.writeCount += count }

// IncrementFilterCount adds count filtered items.
func (c *StepContribution) IncrementFilterCount(count int) { c.filterCount += count }

// IncrementReadSkipCount adds one read skip.
func (c *StepContribution) IncrementReadSkipCount() { c.readSkipCount++ }

// IncrementReadSkipCountBy adds count read skips.
func (c *StepContribution) IncrementReadSkipCountBy(count int) { c.readSkipCount += count }

// IncrementWriteSkipCount adds one write skip.
func (c *StepContribution) IncrementWriteSkipCount() { c.writeSkipCount++ }

// IncrementProcessSkipCount adds one process skip.
func (c *StepContribution) IncrementProcessSkipCount() { c.processSkipCount++ }

// SkipCount returns the skips of this chunk, excluding the inherited parent count.
func (c *StepContribution) SkipCount() int {
	return c.readSkipCount + c.writeSkipCount + c.processSkipCount
}

// StepSkipCount returns the skips of this chunk plus the inherited parent count.
func (c *StepContribution) StepSkipCount() int {
	return c.SkipCount() + c.parentSkipCount
}

func (c *StepContribution) String() string {
	return fmt.Sprintf("[StepContribution: read=%d, written=%d, filtered=%d, readSkips=%d, writeSkips=%d, processSkips=%d, exitStatus=%s]",
		c.readCount, c.writeCount, c.filterCount, c.readSkipCount, c.writeSkipCount, c.processSkipCount, c.exitStatus.ExitCode())
}
