package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/krancour/secureimage/internal/testsupport"
	"github.com/krancour/secureimage/sdk"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type mockJobsStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func newMockJobsStore() *mockJobsStore {
	return &mockJobsStore{jobs: map[string]Job{}}
}

func (m *mockJobsStore) Create(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return &meta.ErrConflict{Type: "Job", ID: job.ID, Reason: "exists"}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobsStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, &meta.ErrNotFound{Type: "Job", ID: id}
	}
	return job, nil
}

func (m *mockJobsStore) Transition(
	_ context.Context,
	id string,
	transition JobStatusTransition,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return &meta.ErrNotFound{Type: "Job", ID: id}
	}
	if !job.Status.CanTransitionTo(transition.Status) {
		return &meta.ErrConflict{Type: "Job", ID: id, Reason: "terminal"}
	}
	job.Status = transition.Status
	job.StatusMessage = transition.StatusMessage
	job.DeliveryFileName = transition.DeliveryFileName
	job.DeliveryFileEtag = transition.DeliveryFileEtag
	job.Updated = transition.Updated
	m.jobs[id] = job
	return nil
}

type mockProjectsStore struct {
	projects map[string]Project
	groups   map[string]DeploymentGroup
}

func (m *mockProjectsStore) GetProject(
	_ context.Context,
	id string,
) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, &meta.ErrNotFound{Type: "Project", ID: id}
	}
	return p, nil
}

func (m *mockProjectsStore) GetDeploymentGroup(
	_ context.Context,
	id string,
) (DeploymentGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return DeploymentGroup{}, &meta.ErrNotFound{Type: "DeploymentGroup", ID: id}
	}
	return g, nil
}

type mockAgent struct {
	mu          sync.Mutex
	err         error
	blockCh     chan struct{}
	signings    []sdk.SigningRequest
	deployments []sdk.DeploymentRequest
}

func (m *mockAgent) Sign(_ context.Context, req sdk.SigningRequest) error {
	if m.blockCh != nil {
		<-m.blockCh
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signings = append(m.signings, req)
	return m.err
}

func (m *mockAgent) Deploy(_ context.Context, req sdk.DeploymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments = append(m.deployments, req)
	return m.err
}

var testNow = time.Date(2020, time.June, 1, 12, 0, 0, 0, time.UTC)

type testFixture struct {
	svc       *jobsService
	jobs      *mockJobsStore
	projects  *mockProjectsStore
	artifacts *testsupport.ArtifactStore
	agent     *mockAgent
}

func newTestFixture() testFixture {
	config := NewConfigWithDefaults()
	config.APIURL = "https://signing.example.com/"
	f := testFixture{
		jobs: newMockJobsStore(),
		projects: &mockProjectsStore{
			projects: map[string]Project{
				"proj-1": {ID: "proj-1", Name: "Field App", DeploymentGroupID: "grp-1"},
				"proj-2": {ID: "proj-2", Name: "Orphan App"},
				"proj-3": {ID: "proj-3", Name: "Lost App", DeploymentGroupID: "nope"},
			},
			groups: map[string]DeploymentGroup{
				"grp-1": {ID: "grp-1", Code: "570", Name: "Field Staff"},
			},
		},
		artifacts: testsupport.NewArtifactStore(),
		agent:     &mockAgent{},
	}
	f.artifacts.Now = func() time.Time { return testNow }
	f.svc = NewJobsService(
		config,
		f.jobs,
		f.projects,
		f.artifacts,
		f.agent,
	).(*jobsService)
	f.svc.now = func() time.Time { return testNow }
	return f
}

// completedJob seeds a Completed signing Job with a delivery artifact that was
// last modified at the given time.
func (f testFixture) completedJob(
	t *testing.T,
	id string,
	lastModified time.Time,
) Job {
	deliveryName := id + "/app-signed.ipa"
	etag := f.artifacts.Seed(deliveryName, []byte("signed"), lastModified)
	job := Job{
		ID:               id,
		Platform:         sdk.PlatformIOS,
		OriginalFileName: id + "/app.ipa",
		DeliveryFileName: deliveryName,
		DeliveryFileEtag: etag,
		Token:            "0123456789abcdef",
		Status:           sdk.JobStatusCompleted,
		Created:          testNow.Add(-time.Minute),
		Updated:          testNow,
	}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func TestCreateSigningJob(t *testing.T) {
	testCases := []struct {
		name       string
		upload     Upload
		platform   string
		agentErr   error
		assertions func(t *testing.T, f testFixture, ref sdk.JobReference, err error)
	}{
		{
			name:     "unsupported platform",
			upload:   Upload{FileName: "app.ipa", Reader: strings.NewReader("x")},
			platform: "windows",
			assertions: func(
				t *testing.T,
				f testFixture,
				_ sdk.JobReference,
				err error,
			) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
				require.Empty(t, f.jobs.jobs)
			},
		},
		{
			name:     "missing file",
			platform: "ios",
			assertions: func(
				t *testing.T,
				_ testFixture,
				_ sdk.JobReference,
				err error,
			) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name: "agent accepts",
			upload: Upload{
				FileName: "../MyApp.ipa",
				Reader:   strings.NewReader("unsigned"),
				Size:     8,
			},
			platform: "iOS",
			assertions: func(
				t *testing.T,
				f testFixture,
				ref sdk.JobReference,
				err error,
			) {
				require.NoError(t, err)
				require.NotEmpty(t, ref.ID)
				job, err := f.jobs.Get(context.Background(), ref.ID)
				require.NoError(t, err)
				require.Equal(t, sdk.JobStatusProcessing, job.Status)
				require.Equal(t, sdk.PlatformIOS, job.Platform)
				require.Equal(t, ref.ID+"/MyApp.ipa", job.OriginalFileName)
				require.Len(t, job.Token, 16)
				obj, ok := f.artifacts.Object(job.OriginalFileName)
				require.True(t, ok)
				require.Equal(t, "unsigned", string(obj.Data))
				require.Equal(t, obj.ETag, job.OriginalFileEtag)
				require.Len(t, f.agent.signings, 1)
				require.Equal(t, ref.ID, f.agent.signings[0].JobID)
				require.Equal(
					t,
					job.OriginalFileName,
					f.agent.signings[0].OriginalFileName,
				)
			},
		},
		{
			name: "agent unreachable",
			upload: Upload{
				FileName: "app.apk",
				Reader:   strings.NewReader("unsigned"),
			},
			platform: "android",
			agentErr: errors.New("connection refused\nmore detail"),
			assertions: func(
				t *testing.T,
				f testFixture,
				ref sdk.JobReference,
				err error,
			) {
				require.NoError(t, err)
				job, err := f.jobs.Get(context.Background(), ref.ID)
				require.NoError(t, err)
				require.Equal(t, sdk.JobStatusFailed, job.Status)
				require.Equal(
					t,
					"Could not hand job to agent: connection refused",
					job.StatusMessage,
				)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newTestFixture()
			f.agent.err = testCase.agentErr
			ref, err := f.svc.CreateSigningJob(
				context.Background(),
				testCase.upload,
				testCase.platform,
			)
			require.NoError(t, f.svc.WaitForDispatches(context.Background()))
			testCase.assertions(t, f, ref, err)
		})
	}
}

func TestCreateSigningJobArtifactStoreFailure(t *testing.T) {
	f := newTestFixture()
	f.artifacts.PutErr = errors.New("bucket is gone")
	_, err := f.svc.CreateSigningJob(
		context.Background(),
		Upload{FileName: "app.ipa", Reader: strings.NewReader("x")},
		"ios",
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket is gone")
	require.Empty(t, f.jobs.jobs)
	require.Empty(t, f.agent.signings)
}

func TestCreateDeploymentJob(t *testing.T) {
	testCases := []struct {
		name               string
		sourceJobID        string
		deploymentPlatform string
		projectID          string
		lastModified       time.Time
		assertions         func(t *testing.T, f testFixture, ref sdk.JobReference, err error)
	}{
		{
			name:               "invalid deployment platform",
			sourceJobID:        "job-1",
			deploymentPlatform: "sideload",
			lastModified:       testNow,
			assertions: func(t *testing.T, _ testFixture, _ sdk.JobReference, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:               "enterprise without project",
			sourceJobID:        "job-1",
			deploymentPlatform: "enterprise",
			lastModified:       testNow,
			assertions: func(t *testing.T, _ testFixture, _ sdk.JobReference, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:               "unknown source job",
			sourceJobID:        "job-9",
			deploymentPlatform: "public",
			lastModified:       testNow,
			assertions: func(t *testing.T, _ testFixture, _ sdk.JobReference, err error) {
				require.Error(t, err)
			},
		},
		{
			name:               "project without deployment group",
			sourceJobID:        "job-1",
			deploymentPlatform: "enterprise",
			projectID:          "proj-2",
			lastModified:       testNow,
			assertions: func(t *testing.T, _ testFixture, _ sdk.JobReference, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:               "project with unknown deployment group",
			sourceJobID:        "job-1",
			deploymentPlatform: "enterprise",
			projectID:          "proj-3",
			lastModified:       testNow,
			assertions: func(t *testing.T, _ testFixture, _ sdk.JobReference, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:               "expired delivery",
			sourceJobID:        "job-1",
			deploymentPlatform: "public",
			lastModified:       testNow.Add(-90 * 24 * time.Hour),
			assertions: func(t *testing.T, f testFixture, _ sdk.JobReference, err error) {
				require.IsType(t, &meta.ErrExpired{}, err)
				require.Empty(t, f.agent.deployments)
			},
		},
		{
			name:               "enterprise deployment",
			sourceJobID:        "job-1",
			deploymentPlatform: "enterprise",
			projectID:          "proj-1",
			lastModified:       testNow.Add(-89 * 24 * time.Hour),
			assertions: func(t *testing.T, f testFixture, ref sdk.JobReference, err error) {
				require.NoError(t, err)
				job, err := f.jobs.Get(context.Background(), ref.ID)
				require.NoError(t, err)
				require.Equal(t, sdk.JobStatusProcessing, job.Status)
				require.Equal(t, "job-1", job.SourceJobID)
				require.Equal(t, "job-1/app-signed.ipa", job.OriginalFileName)
				require.True(t, job.IsDeployment())
				require.Len(t, f.agent.deployments, 1)
				req := f.agent.deployments[0]
				require.Equal(t, sdk.DeploymentPlatformEnterprise, req.DeploymentPlatform)
				require.Equal(t, sdk.PlatformIOS, req.Platform)
				require.Equal(t, "570", req.OrganizationGroupID)
				require.Equal(t, "Field App", req.DisplayName)
				require.Equal(t, "proj-1", req.ProjectID)
			},
		},
		{
			name:               "public deployment",
			sourceJobID:        "job-1",
			deploymentPlatform: "PUBLIC",
			lastModified:       testNow,
			assertions: func(t *testing.T, f testFixture, ref sdk.JobReference, err error) {
				require.NoError(t, err)
				require.Len(t, f.agent.deployments, 1)
				require.Equal(t, ref.ID, f.agent.deployments[0].JobID)
				require.Empty(t, f.agent.deployments[0].OrganizationGroupID)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newTestFixture()
			f.completedJob(t, "job-1", testCase.lastModified)
			ref, err := f.svc.CreateDeploymentJob(
				context.Background(),
				testCase.sourceJobID,
				testCase.deploymentPlatform,
				testCase.projectID,
			)
			require.NoError(t, f.svc.WaitForDispatches(context.Background()))
			testCase.assertions(t, f, ref, err)
		})
	}
}

func TestWaitForDispatches(t *testing.T) {
	f := newTestFixture()
	f.agent.blockCh = make(chan struct{})
	ref, err := f.svc.CreateSigningJob(
		context.Background(),
		Upload{
			FileName: "MyApp.ipa",
			Reader:   strings.NewReader("unsigned"),
			Size:     8,
		},
		"ios",
	)
	require.NoError(t, err)

	// The Agent hasn't accepted the Job yet
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, f.svc.WaitForDispatches(ctx))

	close(f.agent.blockCh)
	require.NoError(t, f.svc.WaitForDispatches(context.Background()))
	job, err := f.svc.Get(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Equal(t, sdk.JobStatusProcessing, job.Status)
}

func TestCreateDeploymentJobWithoutDelivery(t *testing.T) {
	f := newTestFixture()
	require.NoError(t, f.jobs.Create(context.Background(), Job{
		ID:     "job-2",
		Status: sdk.JobStatusProcessing,
	}))
	_, err := f.svc.CreateDeploymentJob(
		context.Background(),
		"job-2",
		"public",
		"",
	)
	require.IsType(t, &meta.ErrNotFound{}, err)
	require.Equal(t, "Delivery", err.(*meta.ErrNotFound).Type)
}

func TestUpdateStatus(t *testing.T) {
	testCases := []struct {
		name       string
		update     sdk.JobStatusUpdate
		assertions func(t *testing.T, job Job, err error)
	}{
		{
			name:   "non-terminal status",
			update: sdk.JobStatusUpdate{Status: sdk.JobStatusProcessing},
			assertions: func(t *testing.T, job Job, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
				require.Equal(t, sdk.JobStatusCreated, job.Status)
			},
		},
		{
			name:   "completed without delivery",
			update: sdk.JobStatusUpdate{Status: sdk.JobStatusCompleted},
			assertions: func(t *testing.T, _ Job, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name: "failed with delivery",
			update: sdk.JobStatusUpdate{
				Status:           sdk.JobStatusFailed,
				DeliveryFileName: "job-1/app.ipa",
			},
			assertions: func(t *testing.T, _ Job, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name: "completed",
			update: sdk.JobStatusUpdate{
				Status:           sdk.JobStatusCompleted,
				DeliveryFileName: "job-1/app-signed.ipa",
				DeliveryFileEtag: "abc",
			},
			assertions: func(t *testing.T, job Job, err error) {
				require.NoError(t, err)
				require.Equal(t, sdk.JobStatusCompleted, job.Status)
				require.Equal(t, "job-1/app-signed.ipa", job.DeliveryFileName)
				require.Equal(t, "abc", job.DeliveryFileEtag)
			},
		},
		{
			name:   "failed without message",
			update: sdk.JobStatusUpdate{Status: sdk.JobStatusFailed},
			assertions: func(t *testing.T, job Job, err error) {
				require.NoError(t, err)
				require.Equal(t, sdk.JobStatusFailed, job.Status)
				require.Equal(t, "Job failed.", job.StatusMessage)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newTestFixture()
			require.NoError(t, f.jobs.Create(context.Background(), Job{
				ID:      "job-1",
				Status:  sdk.JobStatusCreated,
				Created: testNow,
			}))
			err := f.svc.UpdateStatus(context.Background(), "job-1", testCase.update)
			job, getErr := f.jobs.Get(context.Background(), "job-1")
			require.NoError(t, getErr)
			testCase.assertions(t, job, err)
		})
	}
}

func TestUpdateStatusOfTerminalJob(t *testing.T) {
	f := newTestFixture()
	f.completedJob(t, "job-1", testNow)
	err := f.svc.UpdateStatus(
		context.Background(),
		"job-1",
		sdk.JobStatusUpdate{Status: sdk.JobStatusFailed},
	)
	require.Error(t, err)
	_, ok := errors.Cause(err).(*meta.ErrConflict)
	require.True(t, ok)
}

func TestGetStatus(t *testing.T) {
	f := newTestFixture()
	f.completedJob(t, "job-1", testNow)
	require.NoError(t, f.jobs.Create(context.Background(), Job{
		ID:            "job-2",
		Status:        sdk.JobStatusFailed,
		StatusMessage: "No matching provisioning profile",
		Created:       testNow.Add(-30 * time.Second),
		Updated:       testNow,
	}))
	require.NoError(t, f.jobs.Create(context.Background(), Job{
		ID:     "job-3",
		Status: sdk.JobStatusProcessing,
	}))

	report, err := f.svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, sdk.JobStatusCompleted, report.Status)
	require.Equal(
		t,
		"https://signing.example.com/v1/delivery/job-1?token=0123456789abcdef",
		report.URL,
	)
	require.Equal(t, float64(60), report.DurationInSeconds)

	report, err = f.svc.GetStatus(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, sdk.JobStatusFailed, report.Status)
	require.Equal(t, "No matching provisioning profile", report.StatusMessage)
	require.Empty(t, report.URL)
	require.Equal(t, float64(30), report.DurationInSeconds)

	report, err = f.svc.GetStatus(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, sdk.JobStatusReport{Status: sdk.JobStatusProcessing}, report)

	_, err = f.svc.GetStatus(context.Background(), "job-9")
	_, ok := errors.Cause(err).(*meta.ErrNotFound)
	require.True(t, ok)
}

func TestDownload(t *testing.T) {
	testCases := []struct {
		name         string
		token        string
		lastModified time.Time
		assertions   func(t *testing.T, url string, err error)
	}{
		{
			name:         "wrong token",
			token:        "fedcba9876543210",
			lastModified: testNow,
			assertions: func(t *testing.T, _ string, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:         "missing token",
			lastModified: testNow,
			assertions: func(t *testing.T, _ string, err error) {
				require.IsType(t, &meta.ErrBadRequest{}, err)
			},
		},
		{
			name:         "expired",
			token:        "0123456789abcdef",
			lastModified: testNow.Add(-91 * 24 * time.Hour),
			assertions: func(t *testing.T, _ string, err error) {
				require.IsType(t, &meta.ErrExpired{}, err)
			},
		},
		{
			name:         "success",
			token:        "0123456789abcdef",
			lastModified: testNow,
			assertions: func(t *testing.T, url string, err error) {
				require.NoError(t, err)
				require.True(
					t,
					strings.HasPrefix(
						url,
						"https://artifacts.example.com/job-1/app-signed.ipa?",
					),
				)
				require.Contains(t, url, "ttl=15m0s")
				require.Contains(t, url, "filename%3Dapp-signed.ipa")
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newTestFixture()
			f.completedJob(t, "job-1", testCase.lastModified)
			url, err := f.svc.Download(context.Background(), "job-1", testCase.token)
			testCase.assertions(t, url, err)
		})
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	f := newTestFixture()
	require.NoError(t, f.jobs.Create(context.Background(), Job{
		ID:     "job-1",
		Token:  "0123456789abcdef",
		Status: sdk.JobStatusProcessing,
	}))
	_, err := f.svc.Download(context.Background(), "job-1", "0123456789abcdef")
	require.IsType(t, &meta.ErrNotFound{}, err)
}
