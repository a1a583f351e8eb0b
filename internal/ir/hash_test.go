package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadDigestDeterminism(t *testing.T) {
	payload := []byte(`{"id":"a1","type":"updateCard","data":{"card":{"id":"c1","name":"(3) Ship it"}}}`)

	d1, err := PayloadDigest(payload)
	require.NoError(t, err)
	d2, err := PayloadDigest(payload)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestPayloadDigestIgnoresFormatting(t *testing.T) {
	compact := []byte(`{"id":"a1","data":{"card":{"name":"x","id":"c1"}}}`)
	pretty := []byte("{\n  \"data\": {\"card\": {\"id\": \"c1\", \"name\": \"x\"}},\n  \"id\": \"a1\"\n}")

	assert.Equal(t, MustPayloadDigest(compact), MustPayloadDigest(pretty))
}

func TestPayloadDigestChangesWithContent(t *testing.T) {
	a := MustPayloadDigest([]byte(`{"data":{"card":{"name":"(3) Ship it"}}}`))
	b := MustPayloadDigest([]byte(`{"data":{"card":{"name":"(5) Ship it"}}}`))

	assert.NotEqual(t, a, b)
}

func TestPayloadDigestDomainSeparation(t *testing.T) {
	payload := []byte(`{"a":1}`)
	canonical, err := CanonicalPayload(payload)
	require.NoError(t, err)

	assert.NotEqual(t, digest("other/v1", canonical), MustPayloadDigest(payload))
}

func TestPayloadDigestInvalidJSON(t *testing.T) {
	_, err := PayloadDigest([]byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload digest")
}
