// Package fhir holds the subset of the FHIR resource model used by the
// coordination protocol, together with the next-link bundle pager.
package fhir

import "encoding/json"

// Task statuses used by the coordination protocol.
const (
	TaskStatusRequested  = "requested"
	TaskStatusInProgress = "in-progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"

	// TaskIntentOrder is the only intent the engine submits.
	TaskIntentOrder = "order"
)

// QuestionnaireResponse statuses.
const (
	ResponseStatusInProgress = "in-progress"
	ResponseStatusCompleted  = "completed"
)

// Meta carries resource metadata; only profiles are relevant here.
type Meta struct {
	Profile []string `json:"profile,omitempty"`
}

// Identifier identifies an organization or system within a naming system.
type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Reference points at another resource, by identifier in this protocol.
type Reference struct {
	Type       string      `json:"type,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
}

// Coding is a single code drawn from a code system.
type Coding struct {
	System string `json:"system,omitempty"`
	Code   string `json:"code,omitempty"`
}

// CodeableConcept wraps one or more codings. The protocol guarantees exactly
// one coding per input/output item.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
}

// Period is a bounded time range.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Parameter is a single coded input or output item of a Task. Exactly one of
// the value variants is set.
type Parameter struct {
	Type            CodeableConcept `json:"type"`
	ValueString     *string         `json:"valueString,omitempty"`
	ValueURL        *string         `json:"valueUrl,omitempty"`
	ValueIdentifier *Identifier     `json:"valueIdentifier,omitempty"`
	ValueReference  *Reference      `json:"valueReference,omitempty"`
	ValuePeriod     *Period         `json:"valuePeriod,omitempty"`
}

// Code returns the first coding's code, or the empty string when the item
// carries none.
func (p Parameter) Code() string {
	if len(p.Type.Coding) == 0 {
		return ""
	}
	return p.Type.Coding[0].Code
}

// Restriction limits who may act on a Task.
type Restriction struct {
	Recipient []Reference `json:"recipient,omitempty"`
}

// Task is the external coordination protocol's instruction resource.
type Task struct {
	ResourceType          string       `json:"resourceType"`
	ID                    string       `json:"id,omitempty"`
	Meta                  *Meta        `json:"meta,omitempty"`
	InstantiatesCanonical string       `json:"instantiatesCanonical,omitempty"`
	Status                string       `json:"status"`
	Intent                string       `json:"intent"`
	AuthoredOn            string       `json:"authoredOn,omitempty"`
	Requester             *Reference   `json:"requester,omitempty"`
	Restriction           *Restriction `json:"restriction,omitempty"`
	Input                 []Parameter  `json:"input,omitempty"`
	Output                []Parameter  `json:"output,omitempty"`
}

// Answer is a single questionnaire item answer. Exactly one of the value
// variants is set.
type Answer struct {
	ValueString  *string `json:"valueString,omitempty"`
	ValueBoolean *bool   `json:"valueBoolean,omitempty"`
}

// ResponseItem is a single linkId-keyed item of a QuestionnaireResponse.
type ResponseItem struct {
	LinkID string   `json:"linkId"`
	Text   string   `json:"text,omitempty"`
	Answer []Answer `json:"answer,omitempty"`
}

// QuestionnaireResponse is the mutable release-decision record of one
// coordination round.
type QuestionnaireResponse struct {
	ResourceType  string         `json:"resourceType"`
	ID            string         `json:"id,omitempty"`
	Meta          *Meta          `json:"meta,omitempty"`
	Questionnaire string         `json:"questionnaire,omitempty"`
	Status        string         `json:"status"`
	Authored      string         `json:"authored,omitempty"`
	Item          []ResponseItem `json:"item,omitempty"`
}

// StringItem returns the first string answer of the item with the given
// linkId, or the empty string.
func (r *QuestionnaireResponse) StringItem(linkID string) string {
	for _, item := range r.Item {
		if item.LinkID != linkID {
			continue
		}
		for _, a := range item.Answer {
			if a.ValueString != nil {
				return *a.ValueString
			}
		}
	}
	return ""
}

// BundleLink is a named navigation link of a search result bundle.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry is a single search result. The resource is kept raw so callers
// can project it generically or decode it into a concrete type.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Bundle is a paginated search result set.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// NextLink returns the URL of the bundle's "next" relation, or the empty
// string when the bundle is the last page.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}
