package engine

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/config"
	"github.com/sells-group/accruals-cli/internal/evidence"
	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeJudge returns a canned response or error and counts calls.
type fakeJudge struct {
	response string
	err      error
	calls    int
}

func (f *fakeJudge) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.response}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinAccrualAmountUSD: 5000,
		ExcludedGLAccounts:  []string{"4550", "6080", "6090", "6092"},
		StaticRates: map[string]float64{
			"EUR": 1.1,
			"GBP": 1.25,
			"CAD": 0.75,
			"JPY": 0.007,
		},
	}
}

func newTestStage(judge anthropic.Client, ev *evidence.Index) *Stage {
	if ev == nil {
		ev = evidence.NewIndex(nil, nil)
	}
	return New(judge, ev, config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 4000}, testEngineConfig(), "August 2026")
}

func usdLine(remaining int64) model.POLine {
	return model.POLine{
		LookupKey:           "PO-1|1",
		PONumber:            "PO-1",
		VendorName:          "Acme Corp",
		GLAccount:           "6010 Software Licenses",
		Currency:            "USD",
		RemainingBalance:    decimal.NewFromInt(remaining),
		RemainingBalanceUSD: decimal.NewFromInt(remaining),
	}
}

func TestAnalyzeExcludedGLAccount(t *testing.T) {
	judge := &fakeJudge{}
	stage := newTestStage(judge, nil)

	line := usdLine(50000)
	line.GLAccount = "4550 - Capitalized Software"

	d := stage.Analyze(context.Background(), line)

	assert.Equal(t, model.OutcomeNoAccrual, d.Outcome)
	assert.False(t, d.NeedsAccrual)
	assert.True(t, d.AmountUSD.IsZero())
	assert.Equal(t, 1.0, d.Confidence)
	assert.Contains(t, d.Reasoning, "Excluded GL account")
	assert.Zero(t, judge.calls, "excluded accounts must not reach the judge")
}

func TestAnalyzeBelowThreshold(t *testing.T) {
	judge := &fakeJudge{}
	stage := newTestStage(judge, nil)

	d := stage.Analyze(context.Background(), usdLine(4999))

	assert.Equal(t, model.OutcomeNoAccrual, d.Outcome)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Contains(t, d.Reasoning, "threshold")
	assert.Contains(t, d.Reasoning, "4999")
	assert.Zero(t, judge.calls, "sub-threshold lines must not reach the judge")
}

func TestAnalyzeAccrualNeeded(t *testing.T) {
	judge := &fakeJudge{response: `{
		"needs_accrual": true,
		"accrual_amount": 12000,
		"reasoning": "Services delivered in August, no bill posted.",
		"short_summary": "Accrue August service fee",
		"confidence": 0.9
	}`}
	stage := newTestStage(judge, nil)

	d := stage.Analyze(context.Background(), usdLine(50000))

	assert.Equal(t, model.OutcomeAccrual, d.Outcome)
	assert.True(t, d.NeedsAccrual)
	assert.True(t, decimal.NewFromInt(12000).Equal(d.AmountLocal))
	assert.True(t, decimal.NewFromInt(12000).Equal(d.AmountUSD))
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, int64(150), d.Tokens.Total())
	assert.Equal(t, 1, judge.calls)
}

func TestAnalyzeReconciliationZeroesTinyAmount(t *testing.T) {
	// The judge proposes 100 units local where the embedded ratio is 0.01,
	// so the USD value is $1. Reconciliation must zero both currencies.
	judge := &fakeJudge{response: `{
		"needs_accrual": true,
		"accrual_amount": 100,
		"reasoning": "Partial service month.",
		"short_summary": "Small accrual",
		"confidence": 0.8
	}`}
	stage := newTestStage(judge, nil)

	line := model.POLine{
		LookupKey:           "PO-2|1",
		PONumber:            "PO-2",
		GLAccount:           "6010 Software",
		Currency:            "XTS",
		RemainingBalance:    decimal.NewFromInt(1000000),
		RemainingBalanceUSD: decimal.NewFromInt(10000),
	}

	d := stage.Analyze(context.Background(), line)

	assert.Equal(t, model.OutcomeNoAccrual, d.Outcome)
	assert.False(t, d.NeedsAccrual)
	assert.True(t, d.AmountLocal.IsZero())
	assert.True(t, d.AmountUSD.IsZero())
	assert.Contains(t, d.Reasoning, "zeroed")
}

func TestAnalyzeStaticRateFallback(t *testing.T) {
	judge := &fakeJudge{response: `{
		"needs_accrual": true,
		"accrual_amount": 10000,
		"reasoning": "EU entity subscription.",
		"short_summary": "Accrue subscription",
		"confidence": 0.85
	}`}
	stage := newTestStage(judge, nil)

	// No embedded ratio: local and USD balances both zero forces fallback.
	line := model.POLine{
		LookupKey:           "PO-3|1",
		PONumber:            "PO-3",
		GLAccount:           "6020 Services",
		Currency:            "EUR",
		RemainingBalanceUSD: decimal.NewFromInt(20000),
	}

	d := stage.Analyze(context.Background(), line)

	require.Equal(t, model.OutcomeAccrual, d.Outcome)
	assert.True(t, decimal.NewFromInt(11000).Equal(d.AmountUSD), "10000 EUR at static 1.1 = 11000 USD, got %s", d.AmountUSD)
	assert.Contains(t, d.Reasoning, "static EUR rate")
}

func TestAnalyzeUnknownCurrencyPassthrough(t *testing.T) {
	judge := &fakeJudge{response: `{
		"needs_accrual": true,
		"accrual_amount": 9000,
		"reasoning": "Unbilled services.",
		"short_summary": "Accrue",
		"confidence": 0.7
	}`}
	stage := newTestStage(judge, nil)

	line := model.POLine{
		LookupKey:           "PO-4|1",
		PONumber:            "PO-4",
		GLAccount:           "6020 Services",
		Currency:            "CHF",
		RemainingBalanceUSD: decimal.NewFromInt(20000),
	}

	d := stage.Analyze(context.Background(), line)

	require.Equal(t, model.OutcomeAccrual, d.Outcome)
	assert.True(t, decimal.NewFromInt(9000).Equal(d.AmountUSD))
	assert.Contains(t, d.Reasoning, "unconverted")
}

func TestAnalyzeUnknownCurrencyPassthroughBelowThresholdZeroed(t *testing.T) {
	// No derivable ratio and no static rate: the proposed amount passes
	// through unconverted, but the USD threshold still applies to it.
	judge := &fakeJudge{response: `{
		"needs_accrual": true,
		"accrual_amount": 100,
		"reasoning": "Small accrual.",
		"short_summary": "Accrue",
		"confidence": 0.7
	}`}
	stage := newTestStage(judge, nil)

	line := model.POLine{
		LookupKey:           "PO-5|1",
		PONumber:            "PO-5",
		GLAccount:           "6020 Services",
		Currency:            "CHF",
		RemainingBalanceUSD: decimal.NewFromInt(20000),
	}

	d := stage.Analyze(context.Background(), line)

	assert.Equal(t, model.OutcomeNoAccrual, d.Outcome)
	assert.False(t, d.NeedsAccrual)
	assert.True(t, d.AmountLocal.IsZero())
	assert.True(t, d.AmountUSD.IsZero())
	assert.Contains(t, d.Reasoning, "unconverted")
	assert.Contains(t, d.Reasoning, "zeroed")
}

func TestAnalyzeNullUSDBalanceFallsBackToLocal(t *testing.T) {
	// A NULL USD balance scans to zero. The local balance converted at the
	// static rate clears the threshold, so the line must reach the judge
	// instead of being dismissed as sub-threshold.
	judge := &fakeJudge{response: `{
		"needs_accrual": false,
		"accrual_amount": 0,
		"reasoning": "Fully billed.",
		"short_summary": "No accrual",
		"confidence": 0.9
	}`}
	stage := newTestStage(judge, nil)

	line := model.POLine{
		LookupKey:        "PO-6|1",
		PONumber:         "PO-6",
		GLAccount:        "6020 Services",
		Currency:         "EUR",
		RemainingBalance: decimal.NewFromInt(10000),
	}

	d := stage.Analyze(context.Background(), line)

	assert.Equal(t, 1, judge.calls, "10000 EUR at static 1.1 clears the $5000 threshold")
	assert.Equal(t, model.OutcomeNoAccrual, d.Outcome)
}

func TestAnalyzeThresholdMonotonic(t *testing.T) {
	// Raising the threshold over a fixed line can only flip judged lines to
	// skipped, never the reverse.
	cases := []struct {
		threshold  float64
		wantJudged bool
	}{
		{5000, true},
		{7500, true},
		{7501, false},
		{10000, false},
	}
	skippedBelow := false
	for _, tc := range cases {
		judge := &fakeJudge{response: `{
			"needs_accrual": false,
			"accrual_amount": 0,
			"reasoning": "Fully billed.",
			"short_summary": "No accrual",
			"confidence": 0.9
		}`}
		eng := testEngineConfig()
		eng.MinAccrualAmountUSD = tc.threshold
		stage := New(judge, evidence.NewIndex(nil, nil), config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929"}, eng, "August 2026")

		stage.Analyze(context.Background(), usdLine(7500))

		judged := judge.calls > 0
		assert.Equal(t, tc.wantJudged, judged, "threshold %v", tc.threshold)
		if skippedBelow {
			assert.False(t, judged, "a line skipped at a lower threshold must stay skipped at %v", tc.threshold)
		}
		if !judged {
			skippedBelow = true
		}
	}
}

func TestAnalyzeJudgeErrorBecomesErrorOutcome(t *testing.T) {
	judge := &fakeJudge{err: eris.New("api timeout")}
	stage := newTestStage(judge, nil)

	d := stage.Analyze(context.Background(), usdLine(50000))

	assert.Equal(t, model.OutcomeError, d.Outcome)
	assert.False(t, d.NeedsAccrual)
	assert.Zero(t, d.Confidence)
	assert.True(t, d.AmountUSD.IsZero())
	assert.Contains(t, d.Reasoning, "ERROR")
}

func TestAnalyzeMalformedResponseBecomesErrorOutcome(t *testing.T) {
	judge := &fakeJudge{response: "I think an accrual is probably needed here."}
	stage := newTestStage(judge, nil)

	d := stage.Analyze(context.Background(), usdLine(50000))

	assert.Equal(t, model.OutcomeError, d.Outcome)
	assert.Zero(t, d.Confidence)
}

func TestParseVerdictRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"missing needs_accrual", `{"accrual_amount": 1, "confidence": 0.5}`},
		{"missing accrual_amount", `{"needs_accrual": true, "confidence": 0.5}`},
		{"missing confidence", `{"needs_accrual": true, "accrual_amount": 1}`},
		{"confidence out of range", `{"needs_accrual": true, "accrual_amount": 1, "confidence": 1.5}`},
		{"wrong type", `{"needs_accrual": "yes", "accrual_amount": 1, "confidence": 0.5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestParseVerdictFencedJSON(t *testing.T) {
	v, err := parseVerdict("```json\n{\"needs_accrual\": false, \"accrual_amount\": 0, \"reasoning\": \"paid\", \"short_summary\": \"ok\", \"confidence\": 0.95}\n```")
	require.NoError(t, err)
	assert.False(t, v.needsAccrual)
	assert.Equal(t, 0.95, v.confidence)
}

func TestBuildPromptIncludesEvidence(t *testing.T) {
	ev := evidence.NewIndex(
		map[string][]model.Bill{
			"PO-1": {{BillID: "B-1", Currency: "USD", PaymentStatus: "Paid", PostingPeriod: "Jul 2026"}},
		},
		map[string][]model.InvoiceRecord{
			"B-1": {{Key: model.InvoiceKey{BillID: "B-1", FileName: "inv.pdf"}, InvoiceNumber: "INV-9"}},
		},
	)
	stage := newTestStage(&fakeJudge{}, ev)

	prompt, err := stage.buildPrompt(usdLine(50000))
	require.NoError(t, err)

	assert.Contains(t, prompt, "August 2026")
	assert.Contains(t, prompt, "B-1")
	assert.Contains(t, prompt, "INV-9")
	assert.Contains(t, prompt, `"bill_count": 1`)
}
