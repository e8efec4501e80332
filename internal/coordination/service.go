// Package coordination implements the data-sharing coordination engine: it
// starts coordinateDataSharing processes at the external engine, polls the
// asynchronous delivery results and records release decisions.
package coordination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/researchportal/datashare-coordinator/internal/logger"
	"github.com/researchportal/datashare-coordinator/internal/period"
)

// Sandbox identifiers substituted in test mode, so that no real
// data-integration center is ever asked to deliver from a test system.
const (
	SandboxProjectIdentifier = "Test_PROJECT"
	SandboxDMSIdentifier     = "Test_DMS"
	SandboxDICIdentifier     = "Test_DIC1"
)

// CreateParams carries everything the proposal workflow knows about a new
// coordination round.
type CreateParams struct {
	ProposalID           string
	ProjectName          string
	DataManagementSite   string
	DataIntegrationSites []string
	Researchers          []string
	DeliveryDate         time.Time
}

// Handle is what callers persist to later poll, extend and release a round.
type Handle struct {
	BusinessKey string `json:"businessKey"`
	TaskID      string `json:"taskId"`
}

// Service is the public surface of the coordination engine.
type Service interface {
	// CreateCoordinationTask mints a business key, builds the coordination
	// request and submits it.
	CreateCoordinationTask(ctx context.Context, params CreateParams) (*Handle, error)

	// PollReceivedDataSets returns the delivery notifications of a round.
	PollReceivedDataSets(ctx context.Context, businessKey string, since *time.Time) ([]ReceivedDataSet, error)

	// ExtendDeliveryWindow withholds the release and grants the
	// data-integration sites time until newDeliveryDate.
	ExtendDeliveryWindow(ctx context.Context, businessKey string, newDeliveryDate time.Time) error

	// ReleaseConsolidation releases the consolidated result.
	ReleaseConsolidation(ctx context.Context, businessKey string) error

	// FetchResultURL returns the consolidated result URL of a task, or the
	// empty string while the process has not produced one.
	FetchResultURL(ctx context.Context, taskID string) (string, error)
}

// Config carries the collaborator-supplied settings of the service.
type Config struct {
	// FrontendURL is the portal base URL contract links point into.
	FrontendURL string

	// TestMode substitutes sandbox identifiers on every request.
	TestMode bool
}

type service struct {
	protocol  ProtocolClient
	responses *ResponseService
	cfg       Config

	now    func() time.Time
	newKey func() string

	// serializes the find-then-replace write path per business key; the
	// external store offers no conditional update.
	writeMu sync.Mutex
	writes  map[string]*sync.Mutex
}

// Option configures the coordinating service.
type Option func(*service)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithKeyGenerator substitutes the business-key generator, for tests.
func WithKeyGenerator(newKey func() string) Option {
	return func(s *service) {
		s.newKey = newKey
	}
}

// NewService creates the coordinating service.
func NewService(protocol ProtocolClient, responses *ResponseService, cfg Config, opts ...Option) Service {
	s := &service{
		protocol:  protocol,
		responses: responses,
		cfg:       cfg,
		now:       time.Now,
		newKey:    uuid.NewString,
		writes:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateCoordinationTask(ctx context.Context, params CreateParams) (*Handle, error) {
	businessKey := s.newKey()

	extraction, err := period.Extraction(s.now(), params.DeliveryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery date: %w", err)
	}

	taskParams := TaskParams{
		BusinessKey:           businessKey,
		ProjectIdentifier:     params.ProjectName,
		ContractURL:           s.contractURL(params.ProposalID),
		DMSIdentifier:         params.DataManagementSite,
		ResearcherIdentifiers: params.Researchers,
		DICIdentifiers:        params.DataIntegrationSites,
		ExtractionPeriod:      extraction,
		AuthoredOn:            s.now(),
	}

	if s.cfg.TestMode {
		logger.Warnf("TEST MODE: overriding coordination identifiers with sandbox values (proposal %s)",
			params.ProposalID)
		logger.Warnw("TEST MODE overrides",
			"project", SandboxProjectIdentifier,
			"dms", SandboxDMSIdentifier,
			"dic", SandboxDICIdentifier,
		)
		taskParams.ProjectIdentifier = SandboxProjectIdentifier
		taskParams.DMSIdentifier = SandboxDMSIdentifier
		taskParams.DICIdentifiers = []string{SandboxDICIdentifier}
	}

	taskID, err := s.protocol.StartCoordination(ctx, taskParams)
	if err != nil {
		return nil, err
	}

	return &Handle{BusinessKey: businessKey, TaskID: taskID}, nil
}

func (s *service) PollReceivedDataSets(
	ctx context.Context,
	businessKey string,
	since *time.Time,
) ([]ReceivedDataSet, error) {
	return s.protocol.PollReceivedDataSets(ctx, businessKey, since)
}

func (s *service) ExtendDeliveryWindow(ctx context.Context, businessKey string, newDeliveryDate time.Time) error {
	extraction, err := period.Extraction(s.now(), newDeliveryDate)
	if err != nil {
		return fmt.Errorf("invalid delivery date: %w", err)
	}

	unlock := s.lockKey(businessKey)
	defer unlock()
	return s.responses.SetReleaseDecision(ctx, businessKey, true, extraction)
}

func (s *service) ReleaseConsolidation(ctx context.Context, businessKey string) error {
	unlock := s.lockKey(businessKey)
	defer unlock()
	return s.responses.SetReleaseDecision(ctx, businessKey, false, "")
}

func (s *service) FetchResultURL(ctx context.Context, taskID string) (string, error) {
	resultURL, err := s.protocol.ResultURL(ctx, taskID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resultURL), nil
}

func (s *service) contractURL(proposalID string) string {
	return strings.TrimSuffix(s.cfg.FrontendURL, "/") + "/proposals/" + proposalID + "/details"
}

func (s *service) lockKey(businessKey string) func() {
	s.writeMu.Lock()
	mu, ok := s.writes[businessKey]
	if !ok {
		mu = &sync.Mutex{}
		s.writes[businessKey] = mu
	}
	s.writeMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
