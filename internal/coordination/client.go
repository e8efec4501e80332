package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/researchportal/datashare-coordinator/internal/fhir"
	"github.com/researchportal/datashare-coordinator/internal/flatten"
	"github.com/researchportal/datashare-coordinator/internal/httpclient"
	"github.com/researchportal/datashare-coordinator/internal/logger"
	"github.com/researchportal/datashare-coordinator/internal/period"
)

// maxPollPages bounds every result poll. Hitting the bound is a logged
// warning, not a failure; callers receive what was collected so far.
const maxPollPages = 10

// ProtocolClient drives the Task side of the coordination protocol.
type ProtocolClient interface {
	// StartCoordination submits a coordination request and returns the id of
	// the created task.
	StartCoordination(ctx context.Context, params TaskParams) (string, error)

	// ResultURL fetches a task by id and returns its result URL output, or
	// the empty string while the process has not produced one yet.
	ResultURL(ctx context.Context, taskID string) (string, error)

	// PollReceivedDataSets collects delivery-notification tasks. When
	// businessKey is non-empty only matching data sets are returned; when
	// since is non-nil the search is bounded below by the lookback window.
	PollReceivedDataSets(ctx context.Context, businessKey string, since *time.Time) ([]ReceivedDataSet, error)
}

// TaskClient is the default ProtocolClient against a FHIR endpoint.
type TaskClient struct {
	client httpclient.Client
	table  flatten.Table
}

// NewTaskClient creates a protocol client. A nil table falls back to the
// default received-data-set vocabulary.
func NewTaskClient(client httpclient.Client, table flatten.Table) *TaskClient {
	if table == nil {
		table = ReceivedDataSetTable()
	}
	return &TaskClient{client: client, table: table}
}

// StartCoordination builds and submits the coordination request task.
func (c *TaskClient) StartCoordination(ctx context.Context, params TaskParams) (string, error) {
	task := BuildCoordinationRequest(params)

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to encode coordination task: %w", err)
	}

	resp, err := c.client.Post(ctx, "/Task", body)
	if err != nil {
		logger.Errorw("Coordination submit failed",
			"businessKey", params.BusinessKey,
			"error", err,
		)
		return "", NewStartError(err)
	}

	var created fhir.Task
	if err := json.Unmarshal(resp, &created); err != nil {
		logger.Errorw("Coordination submit returned an undecodable task",
			"businessKey", params.BusinessKey,
			"error", err,
		)
		return "", NewStartError(err)
	}
	if created.ID == "" {
		logger.Errorw("Coordination submit returned a task without an id",
			"businessKey", params.BusinessKey,
		)
		return "", NewStartError(fmt.Errorf("created task has no id"))
	}

	logger.Infow("Coordination process started",
		"businessKey", params.BusinessKey,
		"taskId", created.ID,
	)
	return created.ID, nil
}

// ResultURL returns the data-set URL output of the task, or the empty string
// when the task has no outputs or the code is absent. Either simply means
// the process has not finished yet.
func (c *TaskClient) ResultURL(ctx context.Context, taskID string) (string, error) {
	body, err := c.client.Get(ctx, "/Task/"+taskID, nil)
	if err != nil {
		return "", err
	}

	var task fhir.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return "", fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}

	for _, out := range task.Output {
		if out.Code() != fhir.CodeDataSetURL {
			continue
		}
		if out.ValueURL != nil {
			return strings.TrimSpace(*out.ValueURL), nil
		}
		if out.ValueString != nil {
			return strings.TrimSpace(*out.ValueString), nil
		}
	}
	return "", nil
}

// PollReceivedDataSets drives the pager over delivery-notification tasks,
// flattens every entry and filters by business key. Partial results are
// discarded on failure so the filter always sees a consistent snapshot.
func (c *TaskClient) PollReceivedDataSets(
	ctx context.Context,
	businessKey string,
	since *time.Time,
) ([]ReceivedDataSet, error) {
	params := url.Values{}
	params.Set("_profile", fhir.ProfileTaskReceivedDataSet)
	params.Set("_sort", "-_lastUpdated")
	if since != nil {
		params.Set("_lastUpdated", "ge"+period.LookbackStart(*since).UTC().Format(time.RFC3339))
	}

	pager := fhir.NewPager(c.client, "/Task", params)

	var collected []ReceivedDataSet
	pages := 0
	for pages < maxPollPages {
		entries, ok, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pages++

		for _, entry := range entries {
			raw, err := json.Marshal(entry)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encode bundle entry: %w", err)
			}
			record, err := flatten.Flatten(raw, c.table)
			if err != nil {
				logger.Warnw("Skipping malformed bundle entry", "error", err)
				continue
			}
			collected = append(collected, receivedDataSetFromRecord(record))
		}
	}
	if pages == maxPollPages {
		logger.Warnf("Received-data-set poll stopped after %d pages; more results may exist", maxPollPages)
	}

	if businessKey == "" {
		return collected, nil
	}

	matching := make([]ReceivedDataSet, 0, len(collected))
	for _, ds := range collected {
		if ds.BusinessKey == businessKey {
			matching = append(matching, ds)
		}
	}
	return matching, nil
}
