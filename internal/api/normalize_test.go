package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeList_Precedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		keys []string
		want []string
	}{
		{"top-level array", `[{"id":"a"},{"id":"b"}]`, nil, []string{`{"id":"a"}`, `{"id":"b"}`}},
		{"data array", `{"data":[{"id":"a"}],"companies":[{"id":"x"}]}`, nil, []string{`{"id":"a"}`}},
		{"data nested key", `{"data":{"companies":[{"id":"a"}]},"companies":[{"id":"x"}]}`, nil, []string{`{"id":"a"}`}},
		{"named key", `{"companies":[{"id":"acme"}],"total":1}`, nil, []string{`{"id":"acme"}`}},
		{"key order", `{"results":[{"id":"r"}],"items":[{"id":"i"}]}`, nil, []string{`{"id":"i"}`}},
		{"custom key", `{"documents":[{"id":"d"}]}`, []string{"documents"}, []string{`{"id":"d"}`}},
		{"single object", `{"id":"acme","name":"Acme"}`, nil, []string{`{"id":"acme","name":"Acme"}`}},
		{"data object without list", `{"data":{"id":"acme"}}`, nil, []string{`{"data":{"id":"acme"}}`}},
		{"empty data array", `{"data":[]}`, nil, []string{}},
		{"null", `null`, nil, []string{}},
		{"empty", ``, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeList(json.RawMessage(tt.body), tt.keys...)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.JSONEq(t, tt.want[i], string(got[i]))
			}
		})
	}
}

func TestNormalizeList_Scalar(t *testing.T) {
	for _, body := range []string{`"text"`, `42`, `true`} {
		_, err := NormalizeList(json.RawMessage(body))
		assert.Error(t, err, body)
	}
}

func TestDecode(t *testing.T) {
	type company struct {
		ID string `json:"id"`
	}
	got, err := Decode[company](json.RawMessage(`{"id":"acme"}`))
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)

	_, err = Decode[company](json.RawMessage(`[1]`))
	assert.Error(t, err)

	list, err := DecodeList[company](json.RawMessage(`{"data":{"companies":[{"id":"a"},{"id":"b"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, []company{{ID: "a"}, {ID: "b"}}, list)
}
