package navigatortest

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Category is an education-type tab and the group labels listed under it.
type Category struct {
	Name   string
	Groups []string
}

// Week is one entry of the week picker and the body of its page.
type Week struct {
	Range string
	Body  string
}

// Fixture describes a schedule site shaped like the real one: a landing
// form, education-type tabs, group links, a week picker and week pages.
type Fixture struct {
	BaseURL    string
	Categories []Category
	Weeks      []Week
	// Current is the index of the week shown right after a group is opened.
	Current int
	// NoForm makes the landing page never render its form.
	NoForm bool
}

const weekButton = "Выбрать учебную неделю"

// Site builds the screens and transitions of f.
func (f Fixture) Site() *Site {
	s := NewSite()
	if f.NoForm {
		s.Screen("landing", f.BaseURL, `<html><body><div class="spinner">Загрузка</div></body></html>`)
		return s
	}
	s.Screen("landing", f.BaseURL, page(landingForm))
	if len(f.Categories) > 0 {
		s.OnClick("landing", "button.btn-primary", tabScreen(0))
	}

	for i, c := range f.Categories {
		s.Screen(tabScreen(i), "", page(f.tabs(i)))
		for j, other := range f.Categories {
			s.OnText(tabScreen(i), other.Name, tabScreen(j))
		}
		for _, g := range c.Groups {
			s.OnText(tabScreen(i), g, "group:"+g)
			f.group(s, g)
		}
	}
	return s
}

func (f Fixture) group(s *Site, g string) {
	var current string
	if f.Current >= 0 && f.Current < len(f.Weeks) {
		current = f.Weeks[f.Current].Body
	}
	s.Screen("group:"+g, f.GroupURL(g), page(f.picker(g, false)+current))
	s.Screen("weeks:"+g, "", page(f.picker(g, true)+current))
	s.OnText("group:"+g, weekButton, "weeks:"+g)
	for i, w := range f.Weeks {
		s.Screen(fmt.Sprintf("week:%s:%d", g, i+1), f.WeekURL(g, i+1), page(f.picker(g, false)+w.Body))
	}
}

// GroupURL is the page a group link leads to.
func (f Fixture) GroupURL(g string) string {
	return f.BaseURL + "index.php?group=" + url.QueryEscape(g)
}

// WeekURL is the page of the n-th listed week of group g.
func (f Fixture) WeekURL(g string, n int) string {
	return f.GroupURL(g) + fmt.Sprintf("&week=%d", n)
}

func (f Fixture) tabs(active int) string {
	var b strings.Builder
	b.WriteString(`<ul class="nav nav-tabs">`)
	for i, c := range f.Categories {
		cls := "nav-link"
		if i == active {
			cls += " active"
		}
		fmt.Fprintf(&b, `<li class="nav-item"><a class="%s" href="#tab%d">%s</a></li>`, cls, i, html.EscapeString(c.Name))
	}
	b.WriteString(`</ul><div class="tab-content">`)
	for _, g := range f.Categories[active].Groups {
		fmt.Fprintf(&b, `<a class="btn btn-group" href="index.php?group=%s">%s</a>`, url.QueryEscape(g), html.EscapeString(g))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (f Fixture) picker(g string, open bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<a class="btn btn-sm btn-outline-primary" href="#collapseWeeks">%s</a>`, weekButton)
	cls := "collapse"
	if open {
		cls += " show"
	}
	fmt.Fprintf(&b, `<div class="%s" id="collapseWeeks"><ul class="list-group">`, cls)
	for i, w := range f.Weeks {
		fmt.Fprintf(&b, `<li class="list-group-item"><a href="index.php?group=%s&amp;week=%d">Неделя %d<span class="d-block">%s</span></a></li>`,
			url.QueryEscape(g), i+1, i+1, html.EscapeString(w.Range))
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

const landingForm = `<form action="/education/studies/schedule/groups.php">
<select id="department" name="department">
<option value="">Выберите институт</option>
<option value="Институт №3">Институт №3</option>
<option value="Институт №8">Институт №8</option>
</select>
<select id="course" name="course">
<option value="1">1</option><option value="2">2</option><option value="3">3</option>
</select>
<button type="submit" class="btn btn-primary">Отобразить</button>
</form>`

func tabScreen(i int) string { return fmt.Sprintf("tab:%d", i) }

func page(body string) string {
	return "<html><head><title>Расписание</title></head><body>" + body + "</body></html>"
}

// Lesson is a lesson block of a week page. Empty detail fields are omitted
// from the end of the detail list.
type Lesson struct {
	Subject string
	Type    string
	Time    string
	Teacher string
	Room    string
}

// WeekBody renders the title and day list of a week page.
func WeekBody(title string, days ...string) string {
	return `<h1 class="schedule-title">` + html.EscapeString(title) + `</h1><ul class="step">` + strings.Join(days, "") + `</ul>`
}

// Day renders one day of a week page.
func Day(label string, lessons ...Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<li class="step-item"><div class="step-content"><div><span class="step-title">%s</span></div>`, html.EscapeString(label))
	for _, l := range lessons {
		fmt.Fprintf(&b, `<div class="mb-4"><div class="d-flex"><p class="mb-2 fw-semi-bold text-dark">%s</p><span class="badge">%s</span></div><ul class="list-inline">`,
			html.EscapeString(l.Subject), html.EscapeString(l.Type))
		details := []string{l.Time, l.Teacher, l.Room}
		for len(details) > 0 && details[len(details)-1] == "" {
			details = details[:len(details)-1]
		}
		for _, d := range details {
			fmt.Fprintf(&b, `<li class="list-inline-item">%s</li>`, html.EscapeString(d))
		}
		b.WriteString(`</ul></div>`)
	}
	b.WriteString(`</div></li>`)
	return b.String()
}
