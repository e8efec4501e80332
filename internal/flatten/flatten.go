// Package flatten projects the coded input/output items of a raw protocol
// resource into a flat string record, driven by a declarative mapping table.
// It knows nothing about business semantics.
package flatten

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMissingResource is returned when the bundle entry passed in carries no
// resource wrapper, i.e. the caller handed over a malformed entry.
var ErrMissingResource = errors.New("bundle entry has no resource")

// Mapping routes one coded item to a flat output field. ValuePath is a
// dot-separated path into the item (e.g. "valueIdentifier.value"); a path
// that resolves to nothing drops the field rather than failing.
type Mapping struct {
	TargetKey string
	ValuePath string
}

// Table maps an item code to one or more output mappings. A single coded
// item may fan out into several flat fields. Codes without an entry are
// silently ignored.
type Table map[string][]Mapping

// Record is the flat projection of one resource.
type Record map[string]string

// scalar resource fields every projection is seeded with
var seedFields = []string{"status", "intent", "authoredOn"}

// Flatten projects a raw bundle entry into a flat record. The entry must
// wrap a resource; its input and output item lists are scanned against the
// table. Missing values are omitted, never written as empty.
func Flatten(entry []byte, table Table) (Record, error) {
	resource := gjson.GetBytes(entry, "resource")
	if !resource.Exists() {
		return nil, ErrMissingResource
	}

	record := make(Record)
	for _, field := range seedFields {
		if v := resource.Get(field); v.Exists() {
			record[field] = v.String()
		}
	}

	flattenItems(resource.Get("input"), table, record)
	flattenItems(resource.Get("output"), table, record)

	return record, nil
}

func flattenItems(items gjson.Result, table Table, record Record) {
	if !items.IsArray() {
		return
	}
	items.ForEach(func(_, item gjson.Result) bool {
		code := item.Get("type.coding.0.code").String()
		for _, m := range table[code] {
			if v := item.Get(m.ValuePath); v.Exists() {
				record[m.TargetKey] = v.String()
			}
		}
		return true
	})
}
