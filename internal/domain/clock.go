package domain

import "time"

// LocalClock реализует Clock поверх системных часов в заданном поясе.
type LocalClock struct {
	loc *time.Location
}

// NewLocalClock создаёт часы; nil означает системный пояс.
func NewLocalClock(loc *time.Location) LocalClock {
	if loc == nil {
		loc = time.Local
	}
	return LocalClock{loc: loc}
}

// Now возвращает текущее время в локальном поясе.
func (c LocalClock) Now() time.Time {
	return time.Now().In(c.loc)
}
