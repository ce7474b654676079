package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawItems(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}

func TestFilterResourceList(t *testing.T) {
	items := rawItems(
		`{"id":10,"name":"North Sea Feeders"}`,
		`{"id":11,"name":"Atlantic Bulk"}`,
		`{"id":12,"name":"Baltic Coastal"}`,
	)

	kept, err := FilterByAccess(items, RuleResourceList, NewIDSet(10, 12))
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.JSONEq(t, `{"id":10,"name":"North Sea Feeders"}`, string(kept[0]))
	assert.JSONEq(t, `{"id":12,"name":"Baltic Coastal"}`, string(kept[1]))
}

func TestFilterForeignKey(t *testing.T) {
	items := rawItems(
		`{"id":1,"vesselId":20,"departurePort":"NLRTM"}`,
		`{"id":2,"vesselId":21,"departurePort":"DKAAR"}`,
	)

	kept, err := FilterByAccess(items, RuleVesselForeign, NewIDSet(21))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.JSONEq(t, `{"id":2,"vesselId":21,"departurePort":"DKAAR"}`, string(kept[0]))
}

func TestFilterDropsMembersMissingKeyedField(t *testing.T) {
	items := rawItems(
		`{"id":1,"vesselId":20}`,
		`{"id":2}`,
	)

	kept, err := FilterByAccess(items, RuleVesselForeign, NewIDSet(20))
	require.NoError(t, err)
	require.Len(t, kept, 1, "a member the filter cannot attribute must not pass through")
	assert.JSONEq(t, `{"id":1,"vesselId":20}`, string(kept[0]))
}

func TestFilterEmptySetDropsEverything(t *testing.T) {
	items := rawItems(`{"id":10}`, `{"id":11}`)

	kept, err := FilterByAccess(items, RuleResourceList, IDSet{})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestFilterNestedNarrowsInPlace(t *testing.T) {
	items := rawItems(
		`{"id":10,"name":"North Sea Feeders","vessels":[{"id":20,"name":"MV Skagen"},{"id":21,"name":"MV Esbjerg"}]}`,
	)

	kept, err := FilterByAccess(items, RuleNestedVessels, NewIDSet(20))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.JSONEq(t, `{"id":10,"name":"North Sea Feeders","vessels":[{"id":20,"name":"MV Skagen"}]}`, string(kept[0]))
}

func TestFilterNestedDropsParentWhenEmpty(t *testing.T) {
	items := rawItems(
		`{"id":10,"vessels":[{"id":20}]}`,
		`{"id":11,"vessels":[{"id":21}]}`,
	)

	kept, err := FilterByAccess(items, RuleNestedVessels, NewIDSet(21))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.JSONEq(t, `{"id":11,"vessels":[{"id":21}]}`, string(kept[0]))
}

func TestFilterNestedPreservesFieldOrder(t *testing.T) {
	// The nested array sits between two sibling fields; splicing must not
	// reorder them.
	item := `{"zulu":"last","vessels":[{"id":20},{"id":21}],"alpha":"first"}`

	kept, err := FilterByAccess(rawItems(item), RuleNestedVessels, NewIDSet(21))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, `{"zulu":"last","vessels":[{"id":21}],"alpha":"first"}`, string(kept[0]))
}

func TestFilterNestedKeepsRawBytesWhenUnchanged(t *testing.T) {
	item := `{ "id" : 10 , "vessels" : [ { "id" : 20 } ] }`

	kept, err := FilterByAccess(rawItems(item), RuleNestedVessels, NewIDSet(20))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, item, string(kept[0]), "an untouched member must come back byte-for-byte")
}

func TestFilterUnknownShapeErrors(t *testing.T) {
	_, err := FilterByAccess(rawItems(`{"id":1}`), FilterRule{Shape: Shape(99), Field: "id"}, NewIDSet(1))
	require.Error(t, err)
}

func TestSpliceFieldHandlesNestedObjects(t *testing.T) {
	raw := json.RawMessage(`{"vessels":[{"id":20,"meta":{"flag":"NO","tags":[1,2]}}],"tail":true}`)

	out, err := spliceField(raw, "vessels", []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, `{"vessels":[],"tail":true}`, string(out))
}

func TestFilterRejectsNonObjectMember(t *testing.T) {
	_, err := FilterByAccess(rawItems(`[1,2,3]`), RuleResourceList, NewIDSet(1))
	require.Error(t, err)
}
