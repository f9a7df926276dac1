package dispatch

import "strings"

const (
	todoVerbWeight    = 0.45
	todoTitleWeight   = 0.30
	todoUrgencyWeight = 0.10
	todoDueHintWeight = 0.05
)

// Due-date hint buckets.
const (
	DueToday    = "today"
	DueTomorrow = "tomorrow"
	DueThisWeek = "this_week"
	DueDeadline = "deadline"
	DueNone     = "none"
)

// matchTodo detects an imperative/reminder verb plus a task-worthy phrase.
// Strict parameters require a non-empty extracted title.
func (d *Dispatcher) matchTodo(text string, tokens []string) matchResult {
	res := matchResult{module: ModuleTodo, reasons: []string{"matcher=todo"}}
	ex := &res.extracted

	verbIdx := -1
	hasAmount := false
	for _, tok := range tokens {
		if _, ok := parseAmountToken(tok); ok {
			hasAmount = true
			break
		}
	}
	for i, tok := range tokens {
		if d.lex.IsReminderVerb(tok) {
			verbIdx = i
			break
		}
		// A bare payment verb without an amount reads as "remember to pay",
		// not as a completed expense.
		if d.lex.IsPaymentVerb(tok) && !hasAmount && verbIdx == -1 {
			verbIdx = i
		}
	}
	if verbIdx == -1 {
		res.missing = append(res.missing, "todo_title")
		res.reasons = append(res.reasons, "verb_missing")
		return res
	}
	verb := tokens[verbIdx]
	res.reasons = append(res.reasons, "verb="+verb)
	ex.Keywords = append(ex.Keywords, verb)

	title := extractTitle(tokens[verbIdx+1:], d)
	ex.TodoTitle = title

	urgent := false
	for _, tok := range tokens {
		if d.lex.IsUrgencyWord(tok) {
			urgent = true
			ex.Keywords = append(ex.Keywords, tok)
			break
		}
	}
	ex.TodoPriority = "normal"
	if urgent {
		ex.TodoPriority = "high"
	}
	ex.TodoDueHint = dueHint(text, tokens)

	conf := todoVerbWeight
	if title != "" {
		conf += todoTitleWeight
		res.reasons = append(res.reasons, "title_present")
	} else {
		res.missing = append(res.missing, "todo_title")
		res.reasons = append(res.reasons, "title_missing")
	}
	if urgent {
		conf += todoUrgencyWeight
		res.reasons = append(res.reasons, "priority=high")
	}
	if ex.TodoDueHint != DueNone {
		conf += todoDueHintWeight
		res.reasons = append(res.reasons, "due_hint="+ex.TodoDueHint)
	}

	res.conf = conf
	res.strict = title != ""
	return res
}

// extractTitle keeps the task phrase after the verb: leading filler pronouns
// are dropped, trailing urgency/due words are trimmed.
func extractTitle(after []string, d *Dispatcher) string {
	start := 0
	for start < len(after) {
		tok := after[start]
		if tok == "me" || tok == "te" || tok == "de" || tok == "que" || tok == "para" {
			start++
			continue
		}
		break
	}
	end := len(after)
	for end > start {
		tok := after[end-1]
		if d.lex.IsUrgencyWord(tok) || tok == "hoje" || tok == "amanha" {
			end--
			continue
		}
		break
	}
	return strings.Join(after[start:end], " ")
}

func dueHint(text string, tokens []string) string {
	if strings.Contains(text, "esta semana") {
		return DueThisWeek
	}
	for _, tok := range tokens {
		switch tok {
		case "hoje":
			return DueToday
		case "amanha":
			return DueTomorrow
		case "deadline", "prazo":
			return DueDeadline
		}
	}
	return DueNone
}
