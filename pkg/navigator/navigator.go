// Package navigator drives the schedule site's form interface from the landing
// page to a rendered week page.
package navigator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/schedule"
)

// State is a position in the navigation sequence. Each state is a
// precondition for the next.
type State int

const (
	Start State = iota
	InstituteCourseSelected
	EducationTypeSelected
	GroupSelected
	WeekSelected
	PageRendered
)

func (s State) String() string {
	switch s {
	case Start:
		return "Start"
	case InstituteCourseSelected:
		return "InstituteCourseSelected"
	case EducationTypeSelected:
		return "EducationTypeSelected"
	case GroupSelected:
		return "GroupSelected"
	case WeekSelected:
		return "WeekSelected"
	case PageRendered:
		return "PageRendered"
	}
	return "Unknown"
}

// Page is the set of browser capabilities navigation needs. Element lookups
// return ErrNoElement when nothing matches. WaitFor blocks until selector is
// present or ctx is done.
type Page interface {
	Open(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	Has(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first element matching selector whose text contains text.
	ClickText(ctx context.Context, selector, text string) error
	// Select picks the option of a <select> whose value equals option or,
	// failing that, whose text contains it, and fires a change event.
	Select(ctx context.Context, selector, option string) error
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// Launcher hands out pages. Every page is an exclusive browsing session.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}

// Selectors locate the interactive parts of the site.
type Selectors struct {
	Form         string
	Institute    string
	Course       string
	Submit       string
	Tab          string
	Group        string
	WeekButton   string
	WeekList     string
	WeekItem     string
	WeekDates    string
	WeekLink     string
	WeekMarker   string
	DayContainer string
}

var DefaultSelectors = Selectors{
	Form:         "form",
	Institute:    "select#department",
	Course:       "select#course",
	Submit:       "button.btn-primary",
	Tab:          "a.nav-link",
	Group:        "a",
	WeekButton:   "a.btn",
	WeekList:     "div.collapse.show#collapseWeeks",
	WeekItem:     "div#collapseWeeks li.list-group-item",
	WeekDates:    "span.d-block",
	WeekLink:     "a",
	WeekMarker:   "ul.step li.step-item",
	DayContainer: "ul.step",
}

const (
	DefaultBaseURL     = "https://mai.ru/education/studies/schedule/"
	DefaultInstitute   = "Институт №8"
	DefaultCourse      = "1"
	DefaultWeekButton  = "Выбрать учебную неделю"
	DefaultWaitTimeout = 20 * time.Second
	DefaultFormTimeout = 30 * time.Second
	DefaultSettleDelay = time.Second
	DefaultPoll        = 200 * time.Millisecond
)

// DefaultCategories are the education-type tabs, in the order they are tried.
var DefaultCategories = []string{
	"Базовое высшее образование",
	"Специализированное высшее образование",
	"Аспирантура",
}

type Config struct {
	BaseURL    string
	Institute  string
	Course     string
	Categories []string
	Variants   []VariantRule
	Selectors  Selectors
	// WeekButtonText is the label of the control that opens the week picker.
	WeekButtonText string

	WaitTimeout time.Duration
	FormTimeout time.Duration
	// SettleDelay is slept after clicks that trigger client-side rendering.
	SettleDelay  time.Duration
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Institute == "" {
		c.Institute = DefaultInstitute
	}
	if c.Course == "" {
		c.Course = DefaultCourse
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories
	}
	if c.Variants == nil {
		c.Variants, _ = ParseVariantRules(DefaultVariantRules)
	}
	if c.Selectors == (Selectors{}) {
		c.Selectors = DefaultSelectors
	}
	if c.WeekButtonText == "" {
		c.WeekButtonText = DefaultWeekButton
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.FormTimeout <= 0 {
		c.FormTimeout = DefaultFormTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPoll
	}
}

// Rendered is a week page ready for extraction.
type Rendered struct {
	HTML     string
	URL      string
	Category string
	Variant  string
	// Week is the picker label of the selected week, empty when the page
	// shows the site's current week.
	Week string
}

type Navigator struct {
	cfg Config
	log logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Navigator {
	cfg.defaults()
	return &Navigator{cfg: cfg, log: utils.OrDiscard(log)}
}

func (n *Navigator) Config() Config { return n.cfg }

// Navigate walks page from the landing form to the rendered week of q. The
// education-type categories are tried in order; within each the group
// variants are tried in order. A branch that fails after the group was
// opened resets the session before the next category.
func (n *Navigator) Navigate(ctx context.Context, page Page, q schedule.Query) (*Rendered, error) {
	q = q.Normalized()
	target, err := resolveTarget(q)
	if err != nil {
		return nil, err
	}
	log := n.log.WithField("group", q.Group)

	if st := n.start(ctx, page); st.Outcome != OK {
		return nil, st.Err
	}

	var (
		lastErr    error
		groupFound bool
		dirty      bool
	)
	for _, category := range n.cfg.Categories {
		clog := log.WithField("category", category)

		if dirty {
			clog.Debug("Resetting session")
			if st := n.start(ctx, page); st.Outcome != OK {
				return nil, st.Err
			}
			dirty = false
		}

		st := n.selectCategory(ctx, page, category)
		if st.Outcome == Fatal {
			return nil, st.Err
		}
		if st.Outcome == Retryable {
			clog.Debugf("Category unavailable: %v", st.Err)
			continue
		}

		variant, st := n.selectGroup(ctx, page, q.Group)
		if st.Outcome == Fatal {
			return nil, st.Err
		}
		if st.Outcome == Retryable {
			clog.Debugf("Group not listed: %v", st.Err)
			continue
		}
		groupFound = true
		dirty = true
		clog = clog.WithField("variant", variant)
		clog.Info("Group found")

		week, st := n.selectWeek(ctx, page, target)
		if st.Outcome == Fatal {
			return nil, st.Err
		}
		if st.Outcome == Retryable {
			clog.Warnf("Week selection failed: %v", st.Err)
			lastErr = st.Err
			continue
		}

		html, st := n.awaitRendered(ctx, page)
		if st.Outcome == Fatal {
			return nil, st.Err
		}
		if st.Outcome == Retryable {
			clog.Warnf("Week page did not render: %v", st.Err)
			lastErr = st.Err
			continue
		}

		u, _ := page.URL(ctx)
		clog.WithField("week", week).Info("Week page rendered")
		return &Rendered{HTML: html, URL: u, Category: category, Variant: variant, Week: week}, nil
	}

	if !groupFound {
		return nil, &Error{Kind: GroupNotFound, State: EducationTypeSelected}
	}
	return nil, lastErr
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
