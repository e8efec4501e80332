package coordination

import (
	"github.com/researchportal/datashare-coordinator/internal/fhir"
	"github.com/researchportal/datashare-coordinator/internal/flatten"
)

// ReceivedDataSet is the flattened projection of one polled delivery task.
// It is materialized fresh on every poll and never stored.
type ReceivedDataSet struct {
	Status        string `json:"status,omitempty"`
	Intent        string `json:"intent,omitempty"`
	AuthoredOn    string `json:"authoredOn,omitempty"`
	MessageName   string `json:"messageName,omitempty"`
	BusinessKey   string `json:"businessKey,omitempty"`
	DICIdentifier string `json:"dicIdentifier,omitempty"`
	DataSetURL    string `json:"dataSetUrl,omitempty"`
}

// ReceivedDataSetTable maps the coded items of a received-data-set task onto
// the flat projection. Injected into the flattener so tests can substitute
// alternate vocabularies.
func ReceivedDataSetTable() flatten.Table {
	return flatten.Table{
		fhir.CodeBusinessKey: {{TargetKey: "business-key", ValuePath: "valueString"}},
		fhir.CodeMessageName: {{TargetKey: "message-name", ValuePath: "valueString"}},
		// The engine has been observed sending the organization both ways.
		fhir.CodeDICIdentifier: {
			{TargetKey: "dic-identifier-value", ValuePath: "valueIdentifier.value"},
			{TargetKey: "dic-identifier-value", ValuePath: "valueReference.identifier.value"},
		},
		fhir.CodeDataSetURL: {{TargetKey: "data-set-url", ValuePath: "valueUrl"}},
	}
}

func receivedDataSetFromRecord(record flatten.Record) ReceivedDataSet {
	return ReceivedDataSet{
		Status:        record["status"],
		Intent:        record["intent"],
		AuthoredOn:    record["authoredOn"],
		MessageName:   record["message-name"],
		BusinessKey:   record["business-key"],
		DICIdentifier: record["dic-identifier-value"],
		DataSetURL:    record["data-set-url"],
	}
}
