package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeRecordable(t *testing.T) {
	assert.True(t, OutcomeAccrual.Recordable())
	assert.True(t, OutcomeNoAccrual.Recordable())
	assert.True(t, OutcomeExtracted.Recordable())
	assert.True(t, OutcomeExtractionFailed.Recordable())
	assert.True(t, OutcomeError.Recordable())
	assert.False(t, OutcomeNotInvoice.Recordable())
}

func TestTokenUsageAdd(t *testing.T) {
	var total TokenUsage
	total.Add(TokenUsage{InputTokens: 100, OutputTokens: 50})
	total.Add(TokenUsage{InputTokens: 20, OutputTokens: 10})

	assert.Equal(t, int64(120), total.InputTokens)
	assert.Equal(t, int64(60), total.OutputTokens)
	assert.Equal(t, int64(180), total.Total())
}

func TestInvoiceKeyString(t *testing.T) {
	k := InvoiceKey{BillID: "26358814", FileName: "invoice.pdf"}
	assert.Equal(t, "26358814|invoice.pdf", k.String())
}
