package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/researchportal/datashare-coordinator/internal/fhir"
	"github.com/researchportal/datashare-coordinator/internal/httpclient"
	"github.com/researchportal/datashare-coordinator/internal/logger"
)

// searchOutcome distinguishes why a bounded response search ended. The three
// outcomes share a "nothing found" result but carry different log levels.
type searchOutcome int

const (
	outcomeFound searchOutcome = iota
	outcomeExhausted
	outcomeLimitReached
)

// ResponseService finds and completes the release-decision questionnaire
// response of a coordination round.
type ResponseService struct {
	client httpclient.Client
	now    func() time.Time
}

// ResponseOption configures a ResponseService.
type ResponseOption func(*ResponseService)

// WithResponseClock substitutes the time source, for tests.
func WithResponseClock(now func() time.Time) ResponseOption {
	return func(s *ResponseService) {
		s.now = now
	}
}

// NewResponseService creates a response service against the given transport.
func NewResponseService(client httpclient.Client, opts ...ResponseOption) *ResponseService {
	s := &ResponseService{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindInProgressResponse scans the in-progress questionnaire responses,
// newest first, for the one tagged with the business key. Returns nil when
// no match exists within the page bound. A completed response is no longer
// discoverable here, so each round can be answered exactly once through
// this path.
func (s *ResponseService) FindInProgressResponse(
	ctx context.Context,
	businessKey string,
) (*fhir.QuestionnaireResponse, error) {
	if businessKey == "" {
		return nil, ErrMissingBusinessKey
	}

	params := url.Values{}
	params.Set("status", fhir.ResponseStatusInProgress)
	params.Set("_sort", "-_lastUpdated")

	pager := fhir.NewPager(s.client, "/QuestionnaireResponse", params)

	response, outcome, err := s.search(ctx, pager, businessKey)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case outcomeFound:
		return response, nil
	case outcomeLimitReached:
		logger.Warnf("Questionnaire response search for business key %s stopped after %d pages without a match",
			businessKey, maxPollPages)
	case outcomeExhausted:
		logger.Debugf("No in-progress questionnaire response for business key %s", businessKey)
	}
	return nil, nil
}

func (s *ResponseService) search(
	ctx context.Context,
	pager *fhir.Pager,
	businessKey string,
) (*fhir.QuestionnaireResponse, searchOutcome, error) {
	for pages := 0; pages < maxPollPages; pages++ {
		entries, ok, err := pager.Next(ctx)
		if err != nil {
			return nil, outcomeExhausted, err
		}
		if !ok {
			return nil, outcomeExhausted, nil
		}

		for _, entry := range entries {
			var response fhir.QuestionnaireResponse
			if err := json.Unmarshal(entry.Resource, &response); err != nil {
				logger.Warnw("Skipping undecodable questionnaire response", "error", err)
				continue
			}
			if response.StringItem(fhir.LinkIDBusinessKey) == businessKey {
				return &response, outcomeFound, nil
			}
		}
	}
	return nil, outcomeLimitReached, nil
}

// SetReleaseDecision completes the round's questionnaire response. With
// extend false the decision is a plain release; with extend true the release
// is withheld and the extraction period extended by extendPeriod. Stale
// release/extension items from earlier attempts are replaced, never
// duplicated.
func (s *ResponseService) SetReleaseDecision(
	ctx context.Context,
	businessKey string,
	extend bool,
	extendPeriod string,
) error {
	response, err := s.FindInProgressResponse(ctx, businessKey)
	if err != nil {
		return err
	}
	if response == nil {
		return fmt.Errorf("%w: %s", ErrResponseNotFound, businessKey)
	}

	items := make([]fhir.ResponseItem, 0, len(response.Item)+2)
	for _, item := range response.Item {
		if item.LinkID == fhir.LinkIDRelease || item.LinkID == fhir.LinkIDExtendedExtractionPeriod {
			continue
		}
		items = append(items, item)
	}

	release := !extend
	items = append(items, fhir.ResponseItem{
		LinkID: fhir.LinkIDRelease,
		Answer: []fhir.Answer{{ValueBoolean: &release}},
	})
	if extend {
		items = append(items, fhir.ResponseItem{
			LinkID: fhir.LinkIDExtendedExtractionPeriod,
			Answer: []fhir.Answer{{ValueString: &extendPeriod}},
		})
	}

	response.Item = items
	response.Status = fhir.ResponseStatusCompleted
	response.Authored = s.now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode questionnaire response %s: %w", response.ID, err)
	}

	if _, err := s.client.Put(ctx, "/QuestionnaireResponse/"+response.ID, body); err != nil {
		return err
	}

	logger.Infow("Release decision recorded",
		"businessKey", businessKey,
		"responseId", response.ID,
		"extend", extend,
	)
	return nil
}
