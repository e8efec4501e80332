package coordination

import (
	"time"

	"github.com/researchportal/datashare-coordinator/internal/fhir"
	"github.com/researchportal/datashare-coordinator/internal/period"
)

// TaskParams are the typed parameters of one coordination request.
type TaskParams struct {
	// BusinessKey joins all resources of this coordination round.
	BusinessKey string

	// RequesterIdentifier identifies the requesting organization. Defaults
	// to the platform's fixed identifier.
	RequesterIdentifier string

	// ProjectIdentifier names the research project at the process engine.
	ProjectIdentifier string

	// ContractURL points at the signed data-usage contract.
	ContractURL string

	// DMSIdentifier is the data-management site that consolidates results.
	DMSIdentifier string

	// ResearcherIdentifiers are the researchers granted access, zero or more.
	ResearcherIdentifiers []string

	// DICIdentifiers are the data-integration centers asked to deliver,
	// zero or more.
	DICIdentifiers []string

	// ExtractionPeriod bounds how long recipients have to deliver.
	// Defaults to period.DefaultExtraction.
	ExtractionPeriod string

	// AuthoredOn is the request timestamp. Defaults to the current time.
	AuthoredOn time.Time
}

// BuildCoordinationRequest builds the outbound coordination Task. It is a
// pure function: identical parameters produce identical payloads.
//
// The input order is fixed by the process definition: business key, message
// name, project identifier, extraction period, contract URL, researchers,
// data-integration centers, then the data-management site.
func BuildCoordinationRequest(params TaskParams) *fhir.Task {
	requester := params.RequesterIdentifier
	if requester == "" {
		requester = fhir.PlatformOrganizationIdentifier
	}
	extraction := params.ExtractionPeriod
	if extraction == "" {
		extraction = period.DefaultExtraction
	}
	authored := params.AuthoredOn
	if authored.IsZero() {
		authored = time.Now()
	}

	org := &fhir.Reference{
		Type: "Organization",
		Identifier: &fhir.Identifier{
			System: fhir.SystemOrganizationIdentifier,
			Value:  requester,
		},
	}

	inputs := []fhir.Parameter{
		stringInput(fhir.SystemBPMNMessage, fhir.CodeBusinessKey, params.BusinessKey),
		stringInput(fhir.SystemBPMNMessage, fhir.CodeMessageName, fhir.MessageCoordinateDataSharing),
		{
			Type: coded(fhir.SystemDataSharing, fhir.CodeProjectIdentifier),
			ValueIdentifier: &fhir.Identifier{
				System: fhir.SystemProjectIdentifier,
				Value:  params.ProjectIdentifier,
			},
		},
		stringInput(fhir.SystemDataSharing, fhir.CodeExtractionPeriod, extraction),
		urlInput(fhir.SystemDataSharing, fhir.CodeContractURL, params.ContractURL),
	}

	for _, researcher := range params.ResearcherIdentifiers {
		inputs = append(inputs, stringInput(fhir.SystemDataSharing, fhir.CodeResearcherIdentifier, researcher))
	}
	for _, dic := range params.DICIdentifiers {
		inputs = append(inputs, organizationInput(fhir.CodeDICIdentifier, dic))
	}
	inputs = append(inputs, organizationInput(fhir.CodeDMSIdentifier, params.DMSIdentifier))

	return &fhir.Task{
		ResourceType:          "Task",
		Meta:                  &fhir.Meta{Profile: []string{fhir.ProfileTaskCoordinateDataSharing}},
		InstantiatesCanonical: fhir.ProcessCoordinateDataSharing,
		Status:                fhir.TaskStatusRequested,
		Intent:                fhir.TaskIntentOrder,
		AuthoredOn:            authored.UTC().Format(time.RFC3339),
		Requester:             org,
		Restriction:           &fhir.Restriction{Recipient: []fhir.Reference{*org}},
		Input:                 inputs,
	}
}

func coded(system, code string) fhir.CodeableConcept {
	return fhir.CodeableConcept{Coding: []fhir.Coding{{System: system, Code: code}}}
}

func stringInput(system, code, value string) fhir.Parameter {
	return fhir.Parameter{Type: coded(system, code), ValueString: &value}
}

func urlInput(system, code, value string) fhir.Parameter {
	return fhir.Parameter{Type: coded(system, code), ValueURL: &value}
}

func organizationInput(code, identifier string) fhir.Parameter {
	return fhir.Parameter{
		Type: coded(fhir.SystemDataSharing, code),
		ValueReference: &fhir.Reference{
			Type: "Organization",
			Identifier: &fhir.Identifier{
				System: fhir.SystemOrganizationIdentifier,
				Value:  identifier,
			},
		},
	}
}
