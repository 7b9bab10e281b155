package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string `json:"name" validate:"required"`
	Nested  nested `json:"nested"`
	Channel string `json:"channel" validate:"omitempty,oneof=web app"`
}

type nested struct {
	Code string `json:"code" validate:"required,len=3"`
}

func TestDecodeJSONBytesReportsNestedFields(t *testing.T) {
	var dest sample
	err := DecodeJSONBytes([]byte(`{"nested":{"code":"AO"},"extra":true}`), &dest)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be exactly 3 characters", details["nested.code"])
}

func TestDecodeJSONBytesToleratesUnknownFields(t *testing.T) {
	var dest sample
	require.NoError(t, DecodeJSONBytes([]byte(`{"name":"x","nested":{"code":"AOA"},"extra":1}`), &dest))
	assert.Equal(t, "AOA", dest.Nested.Code)
}

func TestDecodeJSONBodyIsStrict(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x","nested":{"code":"AOA"},"extra":1}`))
	var dest sample
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReadBodyRejectsEmpty(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader("  "))
	_, err := ReadBody(req)
	require.Error(t, err)

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"a":1}`))
	raw, err := ReadBody(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=20", nil)
	got, err := ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, got)

	req = httptest.NewRequest("GET", "/", nil)
	got, err = ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, got)

	req = httptest.NewRequest("GET", "/?limit=500", nil)
	_, err = ParseQueryInt(req, "limit", 50, 1, 100)
	require.Error(t, err)
}

func TestPathParam(t *testing.T) {
	got, err := PathParam(" tx-1 ", "externalId", 128)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got)

	_, err = PathParam("", "externalId", 128)
	require.Error(t, err)
	_, err = PathParam(strings.Repeat("x", 10), "externalId", 5)
	require.Error(t, err)
}
