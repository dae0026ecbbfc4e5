package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"triage/internal/k8s"
	"triage/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestTriggerFanoutJobHandler(t *testing.T) {
	client := k8s.NewClientWithClientset(fake.NewSimpleClientset(), "triage", "triage:test")

	rec := doRequest(t, TriggerFanoutJobHandler(client, zerolog.Nop()), http.MethodPost, "/api/admin/fanout-job", `{"limit":200,"force":true}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp models.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.KubernetesJob, "triage-fanout-")

	rec = doRequest(t, FanoutJobStatusHandler(client), http.MethodGet, "/api/admin/fanout-job/"+resp.KubernetesJob, "", map[string]string{"jobName": resp.KubernetesJob})
	require.Equal(t, http.StatusOK, rec.Code)

	var status JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, resp.KubernetesJob, status.JobName)
	assert.Equal(t, "pending", status.Status)

	rec = doRequest(t, DeleteFanoutJobHandler(client, zerolog.Nop()), http.MethodDelete, "/api/admin/fanout-job/"+resp.KubernetesJob, "", map[string]string{"jobName": resp.KubernetesJob})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, FanoutJobStatusHandler(client), http.MethodGet, "/api/admin/fanout-job/"+resp.KubernetesJob, "", map[string]string{"jobName": resp.KubernetesJob})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerFanoutJobHandler_Errors(t *testing.T) {
	rec := doRequest(t, TriggerFanoutJobHandler(nil, zerolog.Nop()), http.MethodPost, "/api/admin/fanout-job", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	client := k8s.NewClientWithClientset(fake.NewSimpleClientset(), "triage", "triage:test")
	rec = doRequest(t, TriggerFanoutJobHandler(client, zerolog.Nop()), http.MethodPost, "/api/admin/fanout-job", `{"limit":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, FanoutJobStatusHandler(client), http.MethodGet, "/api/admin/fanout-job/missing", "", map[string]string{"jobName": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, DeleteFanoutJobHandler(client, zerolog.Nop()), http.MethodDelete, "/api/admin/fanout-job/missing", "", map[string]string{"jobName": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, DeleteFanoutJobHandler(nil, zerolog.Nop()), http.MethodDelete, "/api/admin/fanout-job/x", "", map[string]string{"jobName": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubLauncher struct{}

func (stubLauncher) CreateFanoutJob(context.Context, k8s.FanoutJob) (string, error) { return "", nil }

func (stubLauncher) GetJobStatus(context.Context, string) (*batchv1.Job, error) { return nil, nil }

func (stubLauncher) DeleteJob(context.Context, string) error { return nil }

func TestJobStatus(t *testing.T) {
	var _ JobLauncher = stubLauncher{}

	start := metav1.NewTime(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	done := metav1.NewTime(start.Add(5 * time.Minute))

	tests := []struct {
		name   string
		status batchv1.JobStatus
		want   string
	}{
		{"pending", batchv1.JobStatus{}, "pending"},
		{"running", batchv1.JobStatus{Active: 1, StartTime: &start}, "running"},
		{"completed", batchv1.JobStatus{Succeeded: 1, StartTime: &start, CompletionTime: &done}, "completed"},
		{"failed", batchv1.JobStatus{Failed: 2, StartTime: &start}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "triage-fanout-1"}, Status: tt.status}
			got := jobStatus(job)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "triage-fanout-1", got.JobName)
			if tt.status.StartTime != nil {
				require.NotNil(t, got.StartTime)
				assert.Equal(t, "2026-03-01T10:00:00Z", *got.StartTime)
			}
			if tt.status.CompletionTime != nil {
				require.NotNil(t, got.CompletionTime)
				assert.Equal(t, "2026-03-01T10:05:00Z", *got.CompletionTime)
			}
		})
	}
}
