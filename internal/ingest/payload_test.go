package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
)

const samplePayload = `{
  "id": "tx-1",
  "merchantTransactionId": "ORD-1",
  "type": "payment",
  "amount": 1500.00,
  "currency": "aoa",
  "status": "Success",
  "paymentMethod": "REF",
  "reference": {"referenceNumber": "987", "entity": "11333", "dueDate": "2026-10-30T00:00:00"},
  "customer": {"name": "Ana", "email": "ana@example.ao", "documentNumber": "0012"},
  "createdDate": "2026-10-14T09:00:00.000Z",
  "updatedDate": "2026-10-14T09:05:00.000Z",
  "metadata": {"channel": "ussd"}
}`

func decode(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestNormalizeMapsPayload(t *testing.T) {
	event, err := Normalize(decode(t, samplePayload))
	require.NoError(t, err)

	assert.Equal(t, "tx-1", event.ExternalID)
	assert.Equal(t, "ORD-1", event.MerchantReference)
	assert.Equal(t, "1500", event.Amount.String())
	assert.Equal(t, "AOA", event.Currency)
	assert.Equal(t, enums.TransactionStatusSuccess, event.Status)
	require.NotNil(t, event.Reference)
	assert.Equal(t, "987", event.Reference.Number)
	require.NotNil(t, event.Customer)
	assert.Equal(t, "0012", event.Customer.Document)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 5, 0, 0, time.UTC), event.Timestamp)
	assert.Equal(t, "PAYMENT", decode(t, samplePayload).EventKind())
}

func TestNormalizeErrorDetailFallsBackToErrorDetails(t *testing.T) {
	p := decode(t, `{"id":"tx-2","merchantTransactionId":"ORD-1","amount":"10","currency":"AOA","status":"FAILED",
		"responseStatus":{"code":"400","errorDetails":"card expired"}}`)
	event, err := Normalize(p)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, event.Status)
	assert.Equal(t, "card expired", event.ErrorDetail)
	assert.Nil(t, event.Reference)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNormalizeRejectsUnknownStatusAndNonPositiveAmount(t *testing.T) {
	_, err := Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":1,"currency":"AOA","status":"Bounced"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":0,"currency":"AOA","status":"Success"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","currency":"AOA","status":"Success"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNormalizeBlanksUnparseableCustomerEmail(t *testing.T) {
	event, err := Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":5,"currency":"AOA","status":"Success",
		"customer":{"name":"Ana","email":"n/a","phone":"923000000"}}`))
	require.NoError(t, err)
	require.NotNil(t, event.Customer)
	assert.Empty(t, event.Customer.Email)
	assert.Equal(t, "Ana", event.Customer.Name)
	assert.Equal(t, "923000000", event.Customer.Phone)

	event, err = Normalize(decode(t, samplePayload))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.ao", event.Customer.Email)
}

func TestNormalizeRejectsSubCentAmounts(t *testing.T) {
	_, err := Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":"10.005","currency":"AOA","status":"Success"}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "must have at most 2 decimal places", pkgerrors.As(err).Details().(map[string]any)["amount"])

	event, err := Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":"10.500","currency":"AOA","status":"Success"}`))
	require.NoError(t, err)
	assert.Equal(t, "10.50", event.Amount.StringFixed(2))

	_, err = Normalize(decode(t, `{"id":"a","merchantTransactionId":"b","amount":10.25,"currency":"AOA","status":"Success"}`))
	require.NoError(t, err)
}

func TestDecodeStoredRoundTripsRawPayload(t *testing.T) {
	event, err := DecodeStored([]byte(samplePayload))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", event.ExternalID)

	_, err = DecodeStored([]byte("{"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
