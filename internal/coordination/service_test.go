package coordination_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchportal/datashare-coordinator/internal/coordination"
	"github.com/researchportal/datashare-coordinator/internal/fhir"
	"github.com/researchportal/datashare-coordinator/internal/httpclient"
)

// fakeProtocol records the parameters of the last started coordination.
type fakeProtocol struct {
	started   []coordination.TaskParams
	taskID    string
	startErr  error
	resultURL string
	resultErr error
}

func (f *fakeProtocol) StartCoordination(_ context.Context, params coordination.TaskParams) (string, error) {
	f.started = append(f.started, params)
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.taskID, nil
}

func (f *fakeProtocol) ResultURL(context.Context, string) (string, error) {
	return f.resultURL, f.resultErr
}

func (*fakeProtocol) PollReceivedDataSets(context.Context, string, *time.Time) ([]coordination.ReceivedDataSet, error) {
	return nil, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_CreateCoordinationTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	protocol := &fakeProtocol{taskID: "T1"}

	svc := coordination.NewService(protocol, nil,
		coordination.Config{FrontendURL: "https://portal.example.org"},
		coordination.WithClock(fixedClock(now)),
		coordination.WithKeyGenerator(func() string { return "bk-fixed" }),
	)

	handle, err := svc.CreateCoordinationTask(context.Background(), coordination.CreateParams{
		ProposalID:           "P1",
		ProjectName:          "PROJ-1",
		DataManagementSite:   "dms.example.org",
		DataIntegrationSites: []string{"dic-a.example.org"},
		Researchers:          []string{"alice@example.org"},
		DeliveryDate:         now.AddDate(0, 0, 28),
	})
	require.NoError(t, err)

	assert.Equal(t, &coordination.Handle{BusinessKey: "bk-fixed", TaskID: "T1"}, handle)

	require.Len(t, protocol.started, 1)
	params := protocol.started[0]
	assert.Equal(t, "bk-fixed", params.BusinessKey)
	assert.Equal(t, "P28D", params.ExtractionPeriod)
	assert.Equal(t, "https://portal.example.org/proposals/P1/details", params.ContractURL)
	assert.Equal(t, "PROJ-1", params.ProjectIdentifier)
	assert.Equal(t, "dms.example.org", params.DMSIdentifier)
	assert.Equal(t, []string{"dic-a.example.org"}, params.DICIdentifiers)
	assert.Equal(t, []string{"alice@example.org"}, params.ResearcherIdentifiers)
	assert.Equal(t, now, params.AuthoredOn)
}

func TestService_CreateCoordinationTask_FreshKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	protocol := &fakeProtocol{taskID: "T1"}

	svc := coordination.NewService(protocol, nil,
		coordination.Config{FrontendURL: "https://portal.example.org"},
		coordination.WithClock(fixedClock(now)),
	)

	params := coordination.CreateParams{
		ProposalID:         "P1",
		ProjectName:        "PROJ-1",
		DataManagementSite: "dms.example.org",
		DeliveryDate:       now.AddDate(0, 1, 0),
	}

	first, err := svc.CreateCoordinationTask(context.Background(), params)
	require.NoError(t, err)
	second, err := svc.CreateCoordinationTask(context.Background(), params)
	require.NoError(t, err)

	assert.NotEmpty(t, first.BusinessKey)
	assert.NotEqual(t, first.BusinessKey, second.BusinessKey)
}

func TestService_CreateCoordinationTask_TestModeOverrides(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	protocol := &fakeProtocol{taskID: "T1"}

	svc := coordination.NewService(protocol, nil,
		coordination.Config{FrontendURL: "https://portal.example.org", TestMode: true},
		coordination.WithClock(fixedClock(now)),
	)

	_, err := svc.CreateCoordinationTask(context.Background(), coordination.CreateParams{
		ProposalID:           "P1",
		ProjectName:          "PROJ-1",
		DataManagementSite:   "dms.example.org",
		DataIntegrationSites: []string{"dic-a.example.org", "dic-b.example.org"},
		DeliveryDate:         now.AddDate(0, 0, 28),
	})
	require.NoError(t, err)

	params := protocol.started[0]
	assert.Equal(t, coordination.SandboxProjectIdentifier, params.ProjectIdentifier)
	assert.Equal(t, coordination.SandboxDMSIdentifier, params.DMSIdentifier)
	assert.Equal(t, []string{coordination.SandboxDICIdentifier}, params.DICIdentifiers)
}

func TestService_CreateCoordinationTask_DeliveryDateInPast(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	protocol := &fakeProtocol{taskID: "T1"}

	svc := coordination.NewService(protocol, nil,
		coordination.Config{FrontendURL: "https://portal.example.org"},
		coordination.WithClock(fixedClock(now)),
	)

	_, err := svc.CreateCoordinationTask(context.Background(), coordination.CreateParams{
		ProposalID:   "P1",
		DeliveryDate: now.AddDate(0, 0, -7),
	})
	require.Error(t, err)
	assert.Empty(t, protocol.started)
}

func TestService_FetchResultURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "url passed through", raw: "https://dms.example.org/data/1", expected: "https://dms.example.org/data/1"},
		{name: "blank normalized", raw: "   ", expected: ""},
		{name: "empty stays empty", raw: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			protocol := &fakeProtocol{resultURL: tt.raw}
			svc := coordination.NewService(protocol, nil, coordination.Config{})

			url, err := svc.FetchResultURL(context.Background(), "T1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, url)
		})
	}
}

func TestService_ExtendDeliveryWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

	var updated fhir.QuestionnaireResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeBundle(t, w, "", responseEntry(t, "qr-1", "bk-1"))
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	responses := coordination.NewResponseService(httpclient.NewDefaultClient(server.URL))
	svc := coordination.NewService(&fakeProtocol{}, responses, coordination.Config{},
		coordination.WithClock(fixedClock(now)))

	require.NoError(t, svc.ExtendDeliveryWindow(context.Background(), "bk-1", now.AddDate(0, 0, 14)))

	extensions := itemsWithLinkID(updated, fhir.LinkIDExtendedExtractionPeriod)
	require.Len(t, extensions, 1)
	require.NotNil(t, extensions[0].Answer[0].ValueString)
	assert.Equal(t, "P14D", *extensions[0].Answer[0].ValueString)

	releases := itemsWithLinkID(updated, fhir.LinkIDRelease)
	require.Len(t, releases, 1)
	assert.False(t, *releases[0].Answer[0].ValueBoolean)
}

func TestService_ReleaseConsolidation(t *testing.T) {
	t.Parallel()

	var updated fhir.QuestionnaireResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeBundle(t, w, "", responseEntry(t, "qr-1", "bk-1"))
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	responses := coordination.NewResponseService(httpclient.NewDefaultClient(server.URL))
	svc := coordination.NewService(&fakeProtocol{}, responses, coordination.Config{})

	require.NoError(t, svc.ReleaseConsolidation(context.Background(), "bk-1"))

	releases := itemsWithLinkID(updated, fhir.LinkIDRelease)
	require.Len(t, releases, 1)
	assert.True(t, *releases[0].Answer[0].ValueBoolean)
	assert.Equal(t, fhir.ResponseStatusCompleted, updated.Status)
}
