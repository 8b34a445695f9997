package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension_PartialErrors(t *testing.T) {
	t.Parallel()

	var space Space
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "s1",
		"title": "",
		"errors": {
			"title": {"code": "kms_failure", "reason": "Key management server failed to respond appropriately."},
			"other": {"reason": "no code"}
		}
	}`), &space))

	assert.Equal(t, "s1", space.ID)
	require.True(t, space.HasErrors())

	partial := space.PartialErrors()
	require.Len(t, partial, 1)
	assert.Equal(t, PartialErrorCodeKMSFailure, partial["title"].Code)
	assert.True(t, partial["title"].Code.IsKnown())
	assert.Contains(t, partial["title"].Reason, "Key management")

	assert.Nil(t, space.Errors(), "object form has no array entries")
}

func TestExtension_UnknownCodePreserved(t *testing.T) {
	t.Parallel()

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m1","errors":{"text":{"code":"new_code","reason":"later"}}}`), &msg))

	code := msg.PartialErrors()["text"].Code
	assert.Equal(t, PartialErrorCode("new_code"), code)
	assert.False(t, code.IsKnown())
}

func TestExtension_ArrayForm(t *testing.T) {
	t.Parallel()

	var list ItemList[Space]
	require.NoError(t, json.Unmarshal([]byte(`{"items":[],"errors":[{"description":"first"},{"description":"second"}]}`), &list))

	require.True(t, list.HasErrors())
	assert.Equal(t, []ErrorDetail{{Description: "first"}, {Description: "second"}}, list.Errors())
	assert.Empty(t, list.PartialErrors())
}

func TestExtension_NoErrors(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"id":"p1"}`, `{"id":"p1","errors":null}`} {
		var person Person
		require.NoError(t, json.Unmarshal([]byte(body), &person))

		assert.False(t, person.HasErrors(), body)
		assert.Empty(t, person.PartialErrors(), body)
		assert.Nil(t, person.Errors(), body)
	}
}

func TestOpenEnums(t *testing.T) {
	t.Parallel()

	assert.True(t, EventResourceMessage.IsKnown())
	assert.False(t, EventResource("attachmentActions").IsKnown())
	assert.True(t, EventTypeCreated.IsKnown())
	assert.False(t, EventType("migrated").IsKnown())

	assert.Equal(t, MediaTypeImageJPEG, ParseMediaType("image/jpeg"))
	assert.Equal(t, "text/csv", ParseMediaType("text/csv").String())
	assert.False(t, ParseMediaType("text/csv").IsKnown())
}
