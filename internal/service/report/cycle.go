package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Cycle — период сравнения статистики.
type Cycle string

const (
	CycleYear  Cycle = "year"
	CycleMonth Cycle = "month"
	CycleWeek  Cycle = "week"
)

// ParseCycle разбирает период из параметра запроса.
func ParseCycle(raw string) (Cycle, error) {
	switch c := Cycle(strings.ToLower(strings.TrimSpace(raw))); c {
	case CycleYear, CycleMonth, CycleWeek:
		return c, nil
	default:
		return "", fmt.Errorf("unknown cycle %q: %w", raw, domain.ErrInvalidArgument)
	}
}

// Window — начало текущего и предыдущего периода.
// Текущий период: [Current, now], предыдущий: [Previous, Current).
type Window struct {
	Current  time.Time
	Previous time.Time
}

// DateCycle вычисляет границы периода относительно now:
// год — 1 января этого и прошлого года, месяц — 1 число этого и прошлого
// месяца, неделя — now-7 и now-14 дней.
func DateCycle(cycle Cycle, now time.Time) (Window, error) {
	loc := now.Location()
	switch cycle {
	case CycleYear:
		return Window{
			Current:  time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc),
			Previous: time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, loc),
		}, nil
	case CycleMonth:
		current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Current: current, Previous: current.AddDate(0, -1, 0)}, nil
	case CycleWeek:
		return Window{Current: now.AddDate(0, 0, -7), Previous: now.AddDate(0, 0, -14)}, nil
	default:
		return Window{}, fmt.Errorf("unknown cycle %q: %w", cycle, domain.ErrInvalidArgument)
	}
}
