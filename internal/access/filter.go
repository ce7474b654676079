package access

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape tags how a list-shaped payload references resources. The filter
// dispatches on this closed set instead of duck-typing the payload, so the
// behavior per shape is exhaustively testable.
type Shape int

const (
	// ShapeResourceList: members are the resources themselves, matched on an
	// id field ("id").
	ShapeResourceList Shape = iota
	// ShapeForeignKey: members reference a resource through a foreign key
	// field such as "vesselId" (voyage records, for example).
	ShapeForeignKey
	// ShapeNestedList: members hold a nested array of resource objects under
	// a field such as "vessels". The nested array is filtered in place and
	// the member is dropped only when the filtered array is empty.
	ShapeNestedList
)

// Well-known payload fields the filter understands.
const (
	FieldID       = "id"
	FieldVesselID = "vesselId"
	FieldFleetID  = "fleetId"
	FieldVessels  = "vessels"
	FieldFleets   = "fleets"
)

// FilterRule pairs a shape with the field it keys on.
type FilterRule struct {
	Shape Shape
	Field string
}

// Rules for the payload shapes the platform serves.
var (
	RuleResourceList  = FilterRule{Shape: ShapeResourceList, Field: FieldID}
	RuleVesselForeign = FilterRule{Shape: ShapeForeignKey, Field: FieldVesselID}
	RuleFleetForeign  = FilterRule{Shape: ShapeForeignKey, Field: FieldFleetID}
	RuleNestedVessels = FilterRule{Shape: ShapeNestedList, Field: FieldVessels}
	RuleNestedFleets  = FilterRule{Shape: ShapeNestedList, Field: FieldFleets}
)

// FilterByAccess narrows a list payload to the members the accessible set
// allows. It runs after the handler has fetched the full result and assumes
// nothing about the endpoint's envelope beyond the rule's shape.
//
// Kept members are returned byte-for-byte as fetched, so field order
// survives. Members missing the keyed field are dropped: an object the
// filter cannot attribute to a resource is not returned.
func FilterByAccess(items []json.RawMessage, rule FilterRule, set IDSet) ([]json.RawMessage, error) {
	switch rule.Shape {
	case ShapeResourceList, ShapeForeignKey:
		return filterByIDField(items, rule.Field, set)
	case ShapeNestedList:
		return filterNested(items, rule.Field, set)
	default:
		return nil, fmt.Errorf("access: unknown filter shape %d", rule.Shape)
	}
}

func filterByIDField(items []json.RawMessage, field string, set IDSet) ([]json.RawMessage, error) {
	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		id, ok, err := int64Field(item, field)
		if err != nil {
			return nil, err
		}
		if ok && set.Contains(id) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func filterNested(items []json.RawMessage, field string, set IDSet) ([]json.RawMessage, error) {
	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("access: decode member: %w", err)
		}
		nestedRaw, ok := fields[field]
		if !ok {
			continue
		}
		var nested []json.RawMessage
		if err := json.Unmarshal(nestedRaw, &nested); err != nil {
			return nil, fmt.Errorf("access: decode nested %q: %w", field, err)
		}
		filtered, err := filterByIDField(nested, FieldID, set)
		if err != nil {
			return nil, err
		}
		if len(filtered) == 0 {
			continue
		}
		if len(filtered) == len(nested) {
			kept = append(kept, item)
			continue
		}
		replacement, err := json.Marshal(filtered)
		if err != nil {
			return nil, err
		}
		spliced, err := spliceField(item, field, replacement)
		if err != nil {
			return nil, err
		}
		kept = append(kept, spliced)
	}
	return kept, nil
}

// int64Field extracts an integer field from a raw object without retaining
// the rest of the decode.
func int64Field(item json.RawMessage, field string) (int64, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return 0, false, fmt.Errorf("access: decode member: %w", err)
	}
	raw, ok := fields[field]
	if !ok {
		return 0, false, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// spliceField replaces one top-level field's value inside a raw JSON object
// while leaving every other byte, and therefore the original field order,
// untouched. Re-encoding through a map would sort the keys.
func spliceField(raw json.RawMessage, field string, replacement []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("access: splice: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("access: splice: member is not an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("access: splice: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("access: splice: unexpected token %v", keyTok)
		}
		keyEnd := dec.InputOffset()
		valueEnd, err := skipValue(dec)
		if err != nil {
			return nil, err
		}
		if key != field {
			continue
		}
		var out bytes.Buffer
		out.Grow(len(raw) - int(valueEnd-keyEnd) + len(replacement))
		out.Write(raw[:keyEnd])
		out.WriteByte(':')
		out.Write(replacement)
		out.Write(raw[valueEnd:])
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("access: splice: field %q not found", field)
}

// skipValue consumes exactly one JSON value and returns the input offset at
// its end.
func skipValue(dec *json.Decoder) (int64, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("access: splice: %w", err)
	}
	if delim, ok := tok.(json.Delim); ok && (delim == '{' || delim == '[') {
		depth := 1
		for depth > 0 {
			tok, err := dec.Token()
			if err != nil {
				return 0, fmt.Errorf("access: splice: %w", err)
			}
			if delim, ok := tok.(json.Delim); ok {
				switch delim {
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
			}
		}
	}
	return dec.InputOffset(), nil
}
