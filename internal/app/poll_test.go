package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdis/opsdash/internal/sync"
)

func TestRenderStatusesBoxesEachJob(t *testing.T) {
	var buf bytes.Buffer
	renderStatuses(&buf, []sync.SyncStatus{
		{Job: sync.JobScan, State: sync.SyncIdle, Processed: 3},
		{Job: sync.JobSweep, State: sync.SyncError, LastError: "window unreadable"},
	})

	out := buf.String()
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "╯")
	assert.Contains(t, out, "scan: idle, 3 processed")
	assert.Contains(t, out, "sweep: error, 0 processed (window unreadable)")
}

func TestRenderStatusesEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderStatuses(&buf, nil)
	assert.Empty(t, buf.String())
}
