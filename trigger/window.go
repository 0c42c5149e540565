package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04"

// Window 每日交易时段，End 早于 Start 时表示跨越午夜。零值表示全天
type Window struct {
	start   time.Duration
	end     time.Duration
	loc     *time.Location
	enabled bool
}

// ParseWindow 解析 "HH:MM" 格式的起止时间，两者都为空时返回全天时段。timezone 为空使用本地时区
func ParseWindow(start, end, timezone string) (Window, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return Window{}, nil
	}
	if start == "" || end == "" {
		return Window{}, errors.New("trading window needs both start and end")
	}
	s, err := clockOffset(start)
	if err != nil {
		return Window{}, err
	}
	e, err := clockOffset(end)
	if err != nil {
		return Window{}, err
	}
	if s == e {
		return Window{}, fmt.Errorf("trading window %s-%s is empty", start, end)
	}

	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return Window{}, fmt.Errorf("trading window timezone %q: %w", tz, err)
		}
	}
	return Window{start: s, end: e, loc: loc, enabled: true}, nil
}

func clockOffset(v string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("invalid trading time %q, want HH:MM", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains 左闭右开
func (w Window) Contains(t time.Time) bool {
	if !w.enabled {
		return true
	}
	t = t.In(w.loc)
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	if w.start < w.end {
		return offset >= w.start && offset < w.end
	}
	return offset >= w.start || offset < w.end
}

func (w Window) String() string {
	if !w.enabled {
		return "all day"
	}
	day := time.Time{}
	return fmt.Sprintf("%s-%s %s", day.Add(w.start).Format(clockLayout), day.Add(w.end).Format(clockLayout), w.loc)
}
