// Package markethours decides whether a bar falls inside the configured
// trading-hour windows.
package markethours

import (
	"fmt"
	"strings"
	"time"
)

// Window is a half-open hour range [Start, End) on the 24h clock.
type Window struct {
	Start int
	End   int
}

// Contains reports whether hour h lies in the window.
func (w Window) Contains(h int) bool {
	return h >= w.Start && h < w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.Start, w.End)
}

// Windows is a set of trading windows evaluated in one location.
// The zero value has no windows and contains nothing.
type Windows struct {
	List []Window
	Loc  *time.Location
}

// Default returns the 07-10 and 12-16 UTC windows.
func Default() Windows {
	return Windows{
		List: []Window{{Start: 7, End: 10}, {Start: 12, End: 16}},
		Loc:  time.UTC,
	}
}

// ParseWindows builds Windows from [[start,end], ...] pairs.
// Each pair must satisfy 0 <= start < end <= 24.
func ParseWindows(pairs [][]int, loc *time.Location) (Windows, error) {
	if loc == nil {
		loc = time.UTC
	}
	ws := Windows{Loc: loc, List: make([]Window, 0, len(pairs))}
	for i, p := range pairs {
		if len(p) != 2 {
			return Windows{}, fmt.Errorf("markethours: window %d: want [start,end], got %v", i, p)
		}
		w := Window{Start: p[0], End: p[1]}
		if w.Start < 0 || w.End > 24 || w.Start >= w.End {
			return Windows{}, fmt.Errorf("markethours: window %d: invalid range %d-%d", i, w.Start, w.End)
		}
		ws.List = append(ws.List, w)
	}
	return ws, nil
}

// Contains reports whether t's hour (in the configured location) falls in
// any window.
func (ws Windows) Contains(t time.Time) bool {
	loc := ws.Loc
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	for _, w := range ws.List {
		if w.Contains(h) {
			return true
		}
	}
	return false
}

// Pairs converts back to [[start,end], ...] for persistence.
func (ws Windows) Pairs() [][]int {
	out := make([][]int, len(ws.List))
	for i, w := range ws.List {
		out[i] = []int{w.Start, w.End}
	}
	return out
}

func (ws Windows) String() string {
	parts := make([]string, len(ws.List))
	for i, w := range ws.List {
		parts[i] = w.String()
	}
	name := "UTC"
	if ws.Loc != nil {
		name = ws.Loc.String()
	}
	return strings.Join(parts, ",") + " " + name
}
