package pocbesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmValidationSendsAuthAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/validations/v-1/confirm", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lgtm", body["comment"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Validation{ID: "v-1", Status: "validating", Comment: "lgtm"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k1"
	v, err := c.ConfirmValidation(context.Background(), "v-1", "lgtm", "")
	require.NoError(t, err)
	assert.Equal(t, "validating", v.Status)
}

func TestListValidationsEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/validations", r.URL.Path)
		assert.Equal(t, "reported", r.URL.Query().Get("status"))
		assert.Equal(t, "t1", r.URL.Query().Get("task_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"items":[{"id":"v-1","status":"reported"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	items, err := c.ListValidations(context.Background(), ValidationFilters{Status: "reported", TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v-1", items[0].ID)
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"no_eligible_validator","message":"no eligible validator"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateValidation(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, IsCode(err, "no_eligible_validator"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}
