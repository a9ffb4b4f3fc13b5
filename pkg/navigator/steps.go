package navigator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/schedscope/schedscope/pkg/schedule"
)

// target is the week to select: by date, by 1-based ordinal, or neither
// (the site's current week).
type target struct {
	date time.Time
	week int
}

func (t target) byDate() bool { return !t.date.IsZero() }

func (t target) String() string {
	switch {
	case t.byDate():
		return "date " + t.date.Format(schedule.DateLayout)
	case t.week > 0:
		return fmt.Sprintf("week %d", t.week)
	}
	return "current week"
}

func resolveTarget(q schedule.Query) (target, error) {
	if q.Group == "" {
		return target{}, &Error{Kind: GroupNotFound, State: Start, Err: errors.New("empty group name")}
	}
	if q.Date != "" {
		d, err := schedule.ParseDate(q.Date)
		if err != nil {
			return target{}, &Error{Kind: BadDateFormat, State: Start, Err: err}
		}
		return target{date: d}, nil
	}
	if q.Week < 0 {
		return target{}, &Error{Kind: WeekNotFound, State: Start, Err: fmt.Errorf("week number %d out of range", q.Week)}
	}
	return target{week: q.Week}, nil
}

// failure classifies err raised in state s. Caller cancellation is fatal;
// an expired wait becomes a Timeout; anything else is reported as kind.
func failure(ctx context.Context, s State, kind Kind, err error) Step {
	if ctx.Err() != nil {
		return fatal(s, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = Timeout
	}
	var nerr *Error
	if !errors.As(err, &nerr) {
		err = &Error{Kind: kind, State: s, Err: err}
	}
	return retry(s, err)
}

// wait blocks until selector is present, bounded by timeout.
func (n *Navigator) wait(ctx context.Context, page Page, selector string, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.WaitFor(wctx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

// until polls cond until it holds, bounded by timeout.
func (n *Navigator) until(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		done, err := cond(wctx)
		if err != nil && wctx.Err() == nil {
			return err
		}
		if done {
			return nil
		}
		if err := sleep(wctx, n.cfg.PollInterval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// start opens the landing page and submits institute and course.
func (n *Navigator) start(ctx context.Context, page Page) Step {
	sel := n.cfg.Selectors
	formNotReady := func(err error) Step {
		if ctx.Err() != nil {
			return fatal(Start, ctx.Err())
		}
		return fatal(Start, &Error{Kind: FormNotReady, State: Start, Err: err})
	}

	n.log.Debugf("Opening %s", n.cfg.BaseURL)
	if err := page.Open(ctx, n.cfg.BaseURL); err != nil {
		return formNotReady(err)
	}
	if err := n.wait(ctx, page, sel.Form, n.cfg.FormTimeout); err != nil {
		return formNotReady(err)
	}
	if err := page.Select(ctx, sel.Institute, n.cfg.Institute); err != nil {
		return formNotReady(fmt.Errorf("institute %q: %w", n.cfg.Institute, err))
	}
	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return fatal(Start, err)
	}
	if err := page.Select(ctx, sel.Course, n.cfg.Course); err != nil {
		return formNotReady(fmt.Errorf("course %q: %w", n.cfg.Course, err))
	}
	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return fatal(Start, err)
	}
	if err := page.Click(ctx, sel.Submit); err != nil {
		return formNotReady(fmt.Errorf("submit: %w", err))
	}
	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return fatal(Start, err)
	}

	n.log.Debugf("Selected %s, course %s", n.cfg.Institute, n.cfg.Course)
	return ok(InstituteCourseSelected)
}

func (n *Navigator) selectCategory(ctx context.Context, page Page, category string) Step {
	sel := n.cfg.Selectors
	if err := n.wait(ctx, page, sel.Tab, n.cfg.WaitTimeout); err != nil {
		return failure(ctx, InstituteCourseSelected, GroupNotFound, err)
	}
	if err := page.ClickText(ctx, sel.Tab, category); err != nil {
		return failure(ctx, InstituteCourseSelected, GroupNotFound, fmt.Errorf("tab %q: %w", category, err))
	}
	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return fatal(InstituteCourseSelected, err)
	}
	return ok(EducationTypeSelected)
}

// selectGroup clicks the first group variant present under the active tab.
func (n *Navigator) selectGroup(ctx context.Context, page Page, group string) (string, Step) {
	for _, v := range Variants(group, n.cfg.Variants) {
		err := page.ClickText(ctx, n.cfg.Selectors.Group, v)
		if err == nil {
			if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
				return "", fatal(EducationTypeSelected, err)
			}
			return v, ok(GroupSelected)
		}
		if ctx.Err() != nil {
			return "", fatal(EducationTypeSelected, ctx.Err())
		}
		if !errors.Is(err, ErrNoElement) {
			n.log.Debugf("Clicking group variant %q: %v", v, err)
		}
	}
	return "", retry(EducationTypeSelected, &Error{
		Kind:  GroupNotFound,
		State: EducationTypeSelected,
		Err:   fmt.Errorf("no variant of %q listed", group),
	})
}

// weekOption is one entry of the week picker.
type weekOption struct {
	label  string
	window schedule.WeekWindow
	parsed bool
	href   string
}

func parseWeeks(content string, sel Selectors) ([]weekOption, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	var weeks []weekOption
	doc.Find(sel.WeekItem).Each(func(_ int, item *goquery.Selection) {
		label := strings.TrimSpace(item.Find(sel.WeekDates).First().Text())
		href, _ := item.Find(sel.WeekLink).First().Attr("href")
		w, parsed := schedule.ParseRange(label)
		weeks = append(weeks, weekOption{label: label, window: w, parsed: parsed, href: strings.TrimSpace(href)})
	})
	return weeks, nil
}

func pickWeek(weeks []weekOption, t target) (weekOption, bool) {
	if t.byDate() {
		for _, w := range weeks {
			if w.parsed && w.window.Contains(t.date) {
				return w, true
			}
		}
		return weekOption{}, false
	}
	if t.week < 1 || t.week > len(weeks) {
		return weekOption{}, false
	}
	return weeks[t.week-1], true
}

// selectWeek opens the week picker, chooses the target week and follows its
// link. It returns the picker label of the chosen week.
func (n *Navigator) selectWeek(ctx context.Context, page Page, t target) (string, Step) {
	if !t.byDate() && t.week == 0 {
		return "", ok(WeekSelected)
	}
	sel := n.cfg.Selectors

	if err := n.wait(ctx, page, sel.WeekButton, n.cfg.WaitTimeout); err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, err)
	}
	if err := page.ClickText(ctx, sel.WeekButton, n.cfg.WeekButtonText); err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, fmt.Errorf("week picker: %w", err))
	}
	if err := n.wait(ctx, page, sel.WeekList, n.cfg.WaitTimeout); err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, err)
	}

	content, err := page.Content(ctx)
	if err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, err)
	}
	weeks, err := parseWeeks(content, sel)
	if err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, err)
	}
	n.log.Debugf("Week picker lists %d weeks", len(weeks))

	week, found := pickWeek(weeks, t)
	if !found || week.href == "" {
		return "", retry(GroupSelected, &Error{
			Kind:  WeekNotFound,
			State: GroupSelected,
			Err:   fmt.Errorf("no listed week matches %s", t),
		})
	}

	before, _ := page.URL(ctx)
	link, err := resolve(before, n.cfg.BaseURL, week.href)
	if err != nil {
		return "", failure(ctx, GroupSelected, WeekNotFound, err)
	}
	n.log.Debugf("Selecting week %s (%s)", week.label, link)
	if err := page.Open(ctx, link); err != nil {
		return "", failure(ctx, GroupSelected, Timeout, err)
	}

	err = n.until(ctx, n.cfg.WaitTimeout, func(ctx context.Context) (bool, error) {
		if u, err := page.URL(ctx); err == nil && u != before {
			return true, nil
		}
		return page.Has(ctx, sel.WeekMarker)
	})
	if err != nil {
		return "", failure(ctx, GroupSelected, Timeout, err)
	}
	if err := n.wait(ctx, page, sel.WeekMarker, n.cfg.WaitTimeout); err != nil {
		return "", failure(ctx, GroupSelected, Timeout, err)
	}
	return week.label, ok(WeekSelected)
}

// awaitRendered waits for the day list and returns the page content.
func (n *Navigator) awaitRendered(ctx context.Context, page Page) (string, Step) {
	if err := n.wait(ctx, page, n.cfg.Selectors.DayContainer, n.cfg.WaitTimeout); err != nil {
		return "", failure(ctx, WeekSelected, Timeout, err)
	}
	if err := sleep(ctx, n.cfg.SettleDelay); err != nil {
		return "", fatal(WeekSelected, err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return "", failure(ctx, WeekSelected, Timeout, err)
	}
	return html, ok(PageRendered)
}

func resolve(current, base, href string) (string, error) {
	if current == "" {
		current = base
	}
	cu, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", current, err)
	}
	hu, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse week link %q: %w", href, err)
	}
	return cu.ResolveReference(hu).String(), nil
}
