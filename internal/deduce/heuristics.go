package deduce

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/draft"
	"github.com/dmribeiro/ambientd/internal/signal"
)

const (
	calendarWindowDays    = 7
	calendarConfidence    = 0.78
	routineMinOccurrences = 3
	velocityAnomalyRatio  = 1.5
	memorySearchLimit     = 25
	kindRecurringMerchant = "recurring_merchant"
)

// calendarCorrelation tags a finance draft to a nearby stored occasion when
// the text carries a gift keyword and a biographical date falls within a
// 7-day window of now (year-agnostic month/day match).
func (e *Engine) calendarCorrelation(ctx context.Context, userID string, d draft.Draft, rawText string) *Deduction {
	text := signal.Normalize(rawText)
	hasGiftWord := false
	for _, tok := range strings.Fields(text) {
		if e.lex.IsGiftWord(tok) {
			hasGiftWord = true
			break
		}
	}
	if !hasGiftWord {
		return nil
	}

	dates, err := e.lookup.BiographicalDates(ctx, userID)
	if err != nil {
		e.logger.Debug("biographical date lookup failed", zap.Error(err))
		return nil
	}
	now := e.now()
	for _, bd := range dates {
		days := daysToOccasion(now, bd.Month, bd.Day)
		if days > calendarWindowDays {
			continue
		}
		summary := fmt.Sprintf("purchase likely tied to %q (%02d-%02d, %d days away)",
			bd.Label, bd.Month, bd.Day, days)
		return &Deduction{
			Kind:       KindCalendarCorrelation,
			Confidence: calendarConfidence,
			Summary:    summary,
			Mutations: map[string]any{
				"occasion":      bd.Label,
				"occasion_type": bd.Type,
			},
			Memory: &MemoryRecord{
				Kind: string(KindCalendarCorrelation),
				Text: summary,
				Metadata: map[string]any{
					"occasion": bd.Label,
					"merchant": d.Finance.Merchant,
				},
			},
		}
	}
	return nil
}

// daysToOccasion returns the absolute day distance from now to the nearest
// yearly occurrence of month/day.
func daysToOccasion(now time.Time, month, day int) int {
	best := math.MaxInt32
	for _, year := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		occ := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		diff := int(math.Abs(occ.Sub(now).Hours() / 24))
		if diff < best {
			best = diff
		}
	}
	return best
}

// financialPrefill suggests an amount for a payment-intent todo from the mean
// of matching historical financial records.
func (e *Engine) financialPrefill(ctx context.Context, userID string, d draft.Draft) *Deduction {
	title := d.Todo.Title
	var query []string
	hasPaymentVerb := false
	for _, tok := range strings.Fields(title) {
		if e.lex.IsPaymentVerb(tok) {
			hasPaymentVerb = true
			continue
		}
		query = append(query, tok)
	}
	if !hasPaymentVerb || len(query) == 0 {
		return nil
	}

	matches, err := e.lookup.FinanceMatches(ctx, userID, strings.Join(query, " "))
	if err != nil {
		e.logger.Debug("finance history lookup failed", zap.Error(err))
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	var sum float64
	for _, m := range matches {
		sum += m.Amount
	}
	mean := sum / float64(len(matches))
	conf := math.Min(0.90, 0.6+0.05*float64(len(matches)))
	return &Deduction{
		Kind:       KindFinancialPrefill,
		Confidence: conf,
		Summary: fmt.Sprintf("historical average for %q is %.2f across %d records",
			strings.Join(query, " "), mean, len(matches)),
		Mutations: map[string]any{
			"suggested_amount": math.Round(mean*100) / 100,
			"history_matches":  len(matches),
		},
	}
}

// routineDetection checks recalled recurring-merchant memories for the draft
// merchant; at three or more occurrences it reports the mean interval and
// upserts the routine pattern into profile state.
func (e *Engine) routineDetection(ctx context.Context, userID string, d draft.Draft) *Deduction {
	merchant := d.Finance.Merchant
	if merchant == "" {
		return nil
	}
	hits, err := e.lookup.SearchMemories(ctx, userID, merchant, []string{kindRecurringMerchant}, memorySearchLimit)
	if err != nil {
		e.logger.Debug("memory search failed", zap.Error(err))
		return nil
	}

	var occurrences []time.Time
	for _, h := range hits {
		if m, ok := h.Metadata["merchant"].(string); ok && m == merchant {
			occurrences = append(occurrences, h.CreatedAt)
		}
	}
	if len(occurrences) < routineMinOccurrences {
		return nil
	}
	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Before(occurrences[j]) })

	var intervalSum float64
	for i := 1; i < len(occurrences); i++ {
		intervalSum += occurrences[i].Sub(occurrences[i-1]).Hours() / 24
	}
	period := intervalSum / float64(len(occurrences)-1)
	last := occurrences[len(occurrences)-1]
	conf := math.Min(0.92, 0.65+0.04*float64(len(occurrences)))

	if err := e.lookup.UpsertRoutinePattern(ctx, userID, merchant, period, last, len(occurrences)); err != nil {
		e.logger.Warn("routine pattern upsert failed", zap.Error(err))
	}
	summary := fmt.Sprintf("%q recurs every ~%.1f days (%d occurrences)", merchant, period, len(occurrences))
	return &Deduction{
		Kind:       KindRoutineDetected,
		Confidence: conf,
		Summary:    summary,
		Mutations: map[string]any{
			"routine_merchant":    merchant,
			"routine_period_days": math.Round(period*10) / 10,
			"routine_count":       len(occurrences),
		},
		Memory: &MemoryRecord{
			Kind:     string(KindRoutineDetected),
			Text:     summary,
			Metadata: map[string]any{"merchant": merchant, "period_days": period},
		},
	}
}

// spendingVelocity compares the 7-day daily spend rate to the 30-day rate and
// flags an anomaly when the short window runs at least 1.5x hotter.
func (e *Engine) spendingVelocity(ctx context.Context, userID string) *Deduction {
	now := e.now()
	rate7, err := e.lookup.DailySpendRate(ctx, userID, 7, now)
	if err != nil {
		e.logger.Debug("7-day spend rate lookup failed", zap.Error(err))
		return nil
	}
	rate30, err := e.lookup.DailySpendRate(ctx, userID, 30, now)
	if err != nil {
		e.logger.Debug("30-day spend rate lookup failed", zap.Error(err))
		return nil
	}
	if rate30 <= 0 {
		return nil
	}
	ratio := rate7 / rate30
	if ratio < velocityAnomalyRatio {
		return nil
	}
	conf := math.Min(0.88, 0.60+0.15*(ratio-velocityAnomalyRatio))
	summary := fmt.Sprintf("7-day spend rate %.2f/day is %.1fx the 30-day rate %.2f/day", rate7, ratio, rate30)
	return &Deduction{
		Kind:       KindSpendingVelocity,
		Confidence: conf,
		Summary:    summary,
		Mutations: map[string]any{
			"velocity_ratio": math.Round(ratio*100) / 100,
			"daily_rate_7d":  math.Round(rate7*100) / 100,
			"daily_rate_30d": math.Round(rate30*100) / 100,
		},
		Memory: &MemoryRecord{
			Kind:     string(KindSpendingVelocity),
			Text:     summary,
			Metadata: map[string]any{"ratio": ratio},
		},
	}
}
