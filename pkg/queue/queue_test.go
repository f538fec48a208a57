package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	opinID := uuid.New()
	job, err := NewJob(JobTypeExport, ExportPayload{OpinID: opinID, Format: "xlsx"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, JobTypeExport, job.Type)
	require.Zero(t, job.Attempt)

	var p ExportPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	require.Equal(t, opinID, p.OpinID)
	require.Equal(t, "xlsx", p.Format)
}

func TestNewJobRejectsUnmarshalable(t *testing.T) {
	_, err := NewJob(JobTypeExport, make(chan int))
	require.Error(t, err)
}
