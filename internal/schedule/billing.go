package schedule

import "time"

// Period is the one-month window between two consecutive billing-day
// occurrences. Start and End are inclusive dates.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period (date precision).
func (p Period) Contains(t time.Time) bool {
	day := dateOf(t)
	return !day.Before(p.Start) && !day.After(p.End)
}

// DueInfo describes the current cycle's payment due date relative to
// today.
type DueInfo struct {
	DueDate      time.Time
	DaysUntilDue int
	IsPastDue    bool
}

// BillingPeriod returns the one-month window ending at the most recent
// occurrence of billingDay on or before today. Start is the prior
// occurrence plus one day. Short months clamp the billing day.
func BillingPeriod(billingDay int, today time.Time) Period {
	// Month arithmetic runs on first-of-month anchors; AddDate on a
	// day-31 date would normalize into the wrong month.
	year, month := today.Year(), today.Month()
	end := ClampedDate(year, month, billingDay)
	if end.After(dateOf(today)) {
		year, month = prevMonth(year, month)
		end = ClampedDate(year, month, billingDay)
	}
	priorYear, priorMonth := prevMonth(year, month)
	start := ClampedDate(priorYear, priorMonth, billingDay).AddDate(0, 0, 1)
	return Period{Start: start, End: end}
}

// DueDateInfo computes the current billing cycle's due date. The due
// date uses the same clamped day-of-month rule as the billing day and
// lands in the month after the cycle closes when dueDay <= billingDay,
// since payment is always due after the billing close.
func DueDateInfo(dueDay, billingDay int, today time.Time) DueInfo {
	period := BillingPeriod(billingDay, today)
	due := ClampedDate(period.End.Year(), period.End.Month(), dueDay)
	if dueDay <= billingDay {
		nextYear, nextMonth := nextMonth(period.End.Year(), period.End.Month())
		due = ClampedDate(nextYear, nextMonth, dueDay)
	}
	days := int(due.Sub(dateOf(today)).Hours() / 24)
	return DueInfo{
		DueDate:      due,
		DaysUntilDue: days,
		IsPastDue:    days < 0,
	}
}

// dateOf strips the time-of-day component in UTC.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
