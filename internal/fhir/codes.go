package fhir

// Code systems of the data-sharing framework.
const (
	// SystemBPMNMessage codes the process-engine message parameters.
	SystemBPMNMessage = "http://dsf.dev/fhir/CodeSystem/bpmn-message"

	// SystemDataSharing codes the data-sharing process parameters.
	SystemDataSharing = "http://medizininformatik-initiative.de/fhir/CodeSystem/data-sharing"

	// SystemOrganizationIdentifier is the naming system for participating
	// organization identifiers.
	SystemOrganizationIdentifier = "http://dsf.dev/sid/organization-identifier"

	// SystemProjectIdentifier is the naming system for research project
	// identifiers.
	SystemProjectIdentifier = "http://medizininformatik-initiative.de/sid/project-identifier"
)

// Input/output parameter codes. Unknown codes are tolerated and ignored.
const (
	CodeMessageName          = "message-name"
	CodeBusinessKey          = "business-key"
	CodeProjectIdentifier    = "project-identifier"
	CodeContractURL          = "contract-url"
	CodeExtractionPeriod     = "extraction-period"
	CodeResearcherIdentifier = "researcher-identifier"
	CodeDICIdentifier        = "dic-identifier"
	CodeDMSIdentifier        = "dms-identifier"
	CodeDataSetURL           = "data-set-url"
)

// Process coordinates of the coordinateDataSharing exchange.
const (
	// MessageCoordinateDataSharing starts the coordination process.
	MessageCoordinateDataSharing = "coordinateDataSharing"

	// ProcessCoordinateDataSharing identifies the process definition.
	ProcessCoordinateDataSharing = "http://medizininformatik-initiative.de/bpe/Process/coordinateDataSharing|1.0"

	// ProfileTaskCoordinateDataSharing is pinned on submitted coordination tasks.
	ProfileTaskCoordinateDataSharing = "http://medizininformatik-initiative.de/fhir/StructureDefinition/task-coordinate-data-sharing|1.0"

	// ProfileTaskReceivedDataSet marks result-notification tasks produced by
	// the process engine when a data-integration center delivers.
	ProfileTaskReceivedDataSet = "http://medizininformatik-initiative.de/fhir/StructureDefinition/task-received-data-set|1.0"
)

// QuestionnaireResponse item linkIds of the release decision form.
const (
	LinkIDBusinessKey              = "business-key"
	LinkIDRelease                  = "release"
	LinkIDExtendedExtractionPeriod = "extended-extraction-period"
)

// PlatformOrganizationIdentifier is the fixed identifier under which this
// platform requests coordination.
const PlatformOrganizationIdentifier = "research-data-portal.de"
