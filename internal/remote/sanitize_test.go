package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePayloadStripsUnsafeKeys(t *testing.T) {
	payload := map[string]any{
		"name":        "report.csv",
		"__proto__":   map[string]any{"polluted": true},
		"constructor": "bad",
		"prototype":   "bad",
		"__secret__":  "bad",
		"nested": map[string]any{
			"__proto__": "bad",
			"keep":      "ok",
		},
		"items": []any{
			map[string]any{"constructor": "bad", "value": 1},
		},
	}

	cleaned, err := SanitizePayload(payload)
	require.NoError(t, err)

	top, ok := cleaned.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "report.csv", top["name"])
	assert.NotContains(t, top, "__proto__")
	assert.NotContains(t, top, "constructor")
	assert.NotContains(t, top, "prototype")
	assert.NotContains(t, top, "__secret__")

	nested := top["nested"].(map[string]any)
	assert.Equal(t, "ok", nested["keep"])
	assert.NotContains(t, nested, "__proto__")

	items := top["items"].([]any)
	item := items[0].(map[string]any)
	assert.NotContains(t, item, "constructor")
	assert.Equal(t, float64(1), item["value"])
}

func TestSanitizePayloadStructs(t *testing.T) {
	type params struct {
		FileID string `json:"fileId"`
		Count  int    `json:"count"`
	}

	cleaned, err := SanitizePayload(params{FileID: "abc", Count: 3})
	require.NoError(t, err)

	top, ok := cleaned.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", top["fileId"])
	assert.Equal(t, float64(3), top["count"])
}

func TestSanitizePayloadNil(t *testing.T) {
	cleaned, err := SanitizePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, cleaned)
}

func TestUnsafeKey(t *testing.T) {
	assert.True(t, unsafeKey("__proto__"))
	assert.True(t, unsafeKey("constructor"))
	assert.True(t, unsafeKey("prototype"))
	assert.True(t, unsafeKey("__anything__"))
	assert.False(t, unsafeKey("proto"))
	assert.False(t, unsafeKey("__half"))
	assert.False(t, unsafeKey("name"))
}
