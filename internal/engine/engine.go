// Package engine decides whether a PO line needs a month-end accrual. Each
// line passes through an ordered sequence of checks that short-circuits on
// the first terminal outcome: rule filters that need no AI call, then the AI
// judgment, then currency reconciliation of the AI's proposed amount.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/config"
	"github.com/sells-group/accruals-cli/internal/evidence"
	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/pkg/anthropic"
)

// Stage analyzes PO lines. It is safe for concurrent use: all fields are
// read-only after construction and the evidence index is never mutated.
type Stage struct {
	judge    anthropic.Client
	ev       *evidence.Index
	month    string
	model    string
	maxTok   int64
	temp     float64
	minUSD   decimal.Decimal
	excluded map[string]struct{}
	rates    map[string]decimal.Decimal
}

// New builds a Stage from configuration. month is the analysis month in
// "January 2006" form; it scopes both the prompt and the recorded decisions.
func New(judge anthropic.Client, ev *evidence.Index, cfg config.AnthropicConfig, eng config.EngineConfig, month string) *Stage {
	excluded := make(map[string]struct{}, len(eng.ExcludedGLAccounts))
	for _, a := range eng.ExcludedGLAccounts {
		excluded[a] = struct{}{}
	}
	rates := make(map[string]decimal.Decimal, len(eng.StaticRates))
	for ccy, r := range eng.StaticRates {
		rates[ccy] = decimal.NewFromFloat(r)
	}
	return &Stage{
		judge:    judge,
		ev:       ev,
		month:    month,
		model:    cfg.Model,
		maxTok:   cfg.MaxTokens,
		temp:     cfg.Temperature,
		minUSD:   decimal.NewFromFloat(eng.MinAccrualAmountUSD),
		excluded: excluded,
		rates:    rates,
	}
}

// Analyze decides one PO line. It never returns an error for per-item
// failures; AI transport and parse problems become terminal error decisions
// so one bad line cannot sink the batch.
func (s *Stage) Analyze(ctx context.Context, line model.POLine) model.Decision {
	start := time.Now()

	d := model.Decision{
		LookupKey:     line.LookupKey,
		PONumber:      line.PONumber,
		VendorName:    line.VendorName,
		GLAccount:     line.GLAccount,
		Currency:      line.Currency,
		AnalysisMonth: s.month,
		AnalyzedAt:    time.Now(),
	}

	// Rule filters first. Neither makes an AI call.
	if acct := line.GLAccountNumber(); acct != "" {
		if _, skip := s.excluded[acct]; skip {
			d.Outcome = model.OutcomeNoAccrual
			d.Confidence = 1.0
			d.Reasoning = fmt.Sprintf("Excluded GL account: %s", line.GLAccount)
			d.ShortSummary = "Excluded GL account"
			d.Elapsed = time.Since(start)
			return d
		}
	}

	if remaining := s.remainingUSD(line); remaining.LessThan(s.minUSD) {
		d.Outcome = model.OutcomeNoAccrual
		d.Confidence = 1.0
		d.Reasoning = fmt.Sprintf("Remaining balance $%s USD < $%s USD threshold",
			remaining.StringFixed(2), s.minUSD.StringFixed(2))
		d.ShortSummary = "Below accrual threshold"
		d.Elapsed = time.Since(start)
		return d
	}

	verdict, usage, err := s.judgeLine(ctx, line)
	d.Tokens = model.TokenUsage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
	d.CostUSD = usage.EstimateCost(s.model)
	if err != nil {
		zap.L().Warn("engine: judgment failed",
			zap.String("lookup_key", line.LookupKey),
			zap.Error(err),
		)
		d.Outcome = model.OutcomeError
		d.Confidence = 0
		d.Reasoning = fmt.Sprintf("ERROR: %s", err.Error())
		d.ShortSummary = "Analysis error"
		d.Elapsed = time.Since(start)
		return d
	}

	d.NeedsAccrual = verdict.needsAccrual
	d.Reasoning = verdict.reasoning
	d.ShortSummary = verdict.shortSummary
	d.Confidence = verdict.confidence

	if verdict.needsAccrual {
		d.Outcome = model.OutcomeAccrual
		s.reconcile(&d, line, verdict.amount)
	} else {
		d.Outcome = model.OutcomeNoAccrual
	}

	d.Elapsed = time.Since(start)
	zap.L().Info("engine: line decided",
		zap.String("lookup_key", line.LookupKey),
		zap.String("outcome", string(d.Outcome)),
		zap.String("amount_usd", d.AmountUSD.StringFixed(2)),
		zap.Float64("confidence", d.Confidence),
		zap.Int64("tokens", d.Tokens.Total()),
	)
	return d
}

// remainingUSD returns the line's remaining balance in USD. Warehouse rows
// sometimes carry a NULL USD balance, which scans to zero; in that case the
// local balance is converted with the static table (rate 1.0 when the
// currency has no entry) so a large open line is not dismissed as
// sub-threshold.
func (s *Stage) remainingUSD(line model.POLine) decimal.Decimal {
	if !line.RemainingBalanceUSD.IsZero() || line.RemainingBalance.IsZero() {
		return line.RemainingBalanceUSD
	}
	if rate, ok := s.rates[line.Currency]; ok {
		return line.RemainingBalance.Mul(rate).Round(2)
	}
	return line.RemainingBalance
}

// reconcile converts the AI's local-currency amount to USD and zeroes both
// amounts when the converted value falls below the threshold. Reconciliation
// only ever zeroes; it never raises an amount.
func (s *Stage) reconcile(d *model.Decision, line model.POLine, amount decimal.Decimal) {
	d.AmountLocal = amount

	ratio, ok := line.LocalToUSDRatio()
	switch {
	case ok:
		d.AmountUSD = amount.Mul(ratio).Round(2)
	case line.Currency == "" || line.Currency == "USD":
		d.AmountUSD = amount
	default:
		if rate, found := s.rates[line.Currency]; found {
			d.AmountUSD = amount.Mul(rate).Round(2)
			d.Reasoning += fmt.Sprintf(" [converted using static %s rate %s]", line.Currency, rate.String())
		} else {
			// Undefined ratio and no fallback rate: pass the amount through
			// unconverted and flag it for manual review. The threshold check
			// below still applies to the passed-through value.
			d.AmountUSD = amount
			d.Reasoning += fmt.Sprintf(" [unconverted: no USD ratio available for %s]", line.Currency)
		}
	}

	if d.AmountUSD.LessThan(s.minUSD) {
		d.Reasoning += fmt.Sprintf(" [zeroed: $%s USD < $%s USD threshold]",
			d.AmountUSD.StringFixed(2), s.minUSD.StringFixed(2))
		d.AmountLocal = decimal.Zero
		d.AmountUSD = decimal.Zero
		d.NeedsAccrual = false
		d.Outcome = model.OutcomeNoAccrual
	}
}

// verdict is the validated shape of the AI response. Every field is required
// in the raw JSON; a missing field is a parse failure, not a default.
type verdict struct {
	needsAccrual bool
	amount       decimal.Decimal
	reasoning    string
	shortSummary string
	confidence   float64
}

func (s *Stage) judgeLine(ctx context.Context, line model.POLine) (verdict, anthropic.TokenUsage, error) {
	prompt, err := s.buildPrompt(line)
	if err != nil {
		return verdict{}, anthropic.TokenUsage{}, err
	}

	req := anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTok,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	}
	temp := s.temp
	req.Temperature = &temp

	resp, err := s.judge.CreateMessage(ctx, req)
	if err != nil {
		return verdict{}, anthropic.TokenUsage{}, eris.Wrap(err, "engine: create message")
	}

	v, err := parseVerdict(resp.Text())
	return v, resp.Usage, err
}

// parseVerdict validates the judge's JSON strictly. Pointer fields detect
// omissions: a response that skips needs_accrual or confidence is rejected
// rather than silently defaulted.
func parseVerdict(text string) (verdict, error) {
	cleaned := anthropic.CleanJSON(text)

	var raw struct {
		NeedsAccrual  *bool    `json:"needs_accrual"`
		AccrualAmount *float64 `json:"accrual_amount"`
		Reasoning     string   `json:"reasoning"`
		ShortSummary  string   `json:"short_summary"`
		Confidence    *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return verdict{}, eris.Wrap(err, "engine: parse judgment JSON")
	}
	if raw.NeedsAccrual == nil {
		return verdict{}, eris.New("engine: judgment missing needs_accrual")
	}
	if raw.AccrualAmount == nil {
		return verdict{}, eris.New("engine: judgment missing accrual_amount")
	}
	if raw.Confidence == nil {
		return verdict{}, eris.New("engine: judgment missing confidence")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return verdict{}, eris.Errorf("engine: confidence %v out of range", *raw.Confidence)
	}

	return verdict{
		needsAccrual: *raw.NeedsAccrual,
		amount:       decimal.NewFromFloat(*raw.AccrualAmount),
		reasoning:    raw.Reasoning,
		shortSummary: raw.ShortSummary,
		confidence:   *raw.Confidence,
	}, nil
}
