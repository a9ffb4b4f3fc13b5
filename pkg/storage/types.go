package storage

import (
	"time"

	"github.com/schedscope/schedscope/pkg/schedule"
)

// Week identifies a stored week. Window is optional.
type Week struct {
	Number int
	Year   int
	Window *schedule.WeekWindow
}

// GroupSummary describes what is stored for one group.
type GroupSummary struct {
	Name      string
	Weeks     int
	Lessons   int
	LastSaved time.Time
}

type Stats struct {
	Groups   int `json:"groups"`
	Weeks    int `json:"weeks"`
	Teachers int `json:"teachers"`
	Rooms    int `json:"rooms"`
	Lessons  int `json:"lessons"`
}
