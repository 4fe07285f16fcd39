package domain

import "time"

// DefaultEngagementLimit caps likes, collects, comments and replies combined per day.
const DefaultEngagementLimit = 80

// DefaultDailyLimits are the per-type budgets used until an operator overrides them.
var DefaultDailyLimits = map[ActionType]int{
	ActionNavigate: 300,
	ActionClick:    500,
	ActionTypeText: 200,
	ActionLike:     30,
	ActionCollect:  10,
	ActionComment:  10,
	ActionReply:    20,
	ActionPublish:  3,
}

type QuotaWindow struct {
	Action      ActionType
	WindowStart time.Time
	Count       int
	Limit       int
}

// StartOfDay returns local midnight for the day containing t.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// Expired reports whether now falls on a later local day than the window.
func (w QuotaWindow) Expired(now time.Time) bool {
	if w.WindowStart.IsZero() {
		return true
	}

	return !StartOfDay(now.In(w.WindowStart.Location())).Equal(w.WindowStart)
}

// ResetsAt is the next local midnight after the window start.
func (w QuotaWindow) ResetsAt() time.Time {
	year, month, day := w.WindowStart.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, w.WindowStart.Location())
}

func (w QuotaWindow) Remaining() int {
	remaining := w.Limit - w.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

type QuotaDecision struct {
	Action    ActionType `json:"action"`
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason,omitempty"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
}

type QuotaUsage struct {
	Action   ActionType `json:"action"`
	Used     int        `json:"used"`
	Limit    int        `json:"limit"`
	ResetsAt time.Time  `json:"resets_at"`
}

func (u QuotaUsage) Remaining() int {
	return QuotaWindow{Count: u.Used, Limit: u.Limit}.Remaining()
}

// LedgerState is everything the quota ledger persists between runs.
type LedgerState struct {
	Windows map[ActionType]QuotaWindow
	Records []ActionRecord
}
