package jobqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"failed with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"failed with no retries left", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"completed", &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
		{"processing", &Job{Status: JobStatusProcessing, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 2}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("smtp down")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "smtp down", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestJobDecode(t *testing.T) {
	job := &Job{Payload: json.RawMessage(`{"To":"a@b.c","Subject":"hi"}`)}
	var dst struct {
		To      string
		Subject string
	}
	require.NoError(t, job.Decode(&dst))
	assert.Equal(t, "a@b.c", dst.To)
	assert.Equal(t, "hi", dst.Subject)

	job.Payload = json.RawMessage(`not json`)
	assert.Error(t, job.Decode(&dst))
}
