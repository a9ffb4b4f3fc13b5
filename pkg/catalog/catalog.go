// Package catalog lists institutes and groups from the schedule site's
// groups page.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/whttp"
)

const DefaultGroupsURL = "https://mai.ru/education/studies/schedule/groups.php"

type Institute struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Group struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Course int    `json:"course,omitempty"`
}

type Client struct {
	http      *whttp.Client
	groupsURL string
	log       logrus.FieldLogger
}

func New(c *whttp.Client, groupsURL string, log logrus.FieldLogger) *Client {
	if groupsURL == "" {
		groupsURL = DefaultGroupsURL
	}
	return &Client{http: c, groupsURL: groupsURL, log: utils.OrDiscard(log)}
}

// ErrUnexpectedPage is returned when a page lacks the selector it is scraped
// from, as error and maintenance pages do.
var ErrUnexpectedPage = errors.New("unexpected page")

// get fetches a catalog page and rejects non-200 answers.
func (c *Client) get(ctx context.Context, u string) (*whttp.Response, error) {
	res, err := c.http.Send(ctx, &whttp.Request{
		URL: u,
		Headers: []whttp.Header{
			{Name: "Accept", Value: "text/html"},
			{Name: "Referer", Value: c.groupsURL},
		},
	})
	if err != nil {
		return nil, err
	}
	c.log.Debugf("GET %s: status %d, %d chars, title %q", u, res.StatusCode, res.ResponseLength, res.Title)
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d (%s)", u, res.StatusCode, res.Title)
	}
	return res, nil
}

func (c *Client) Institutes(ctx context.Context) ([]Institute, error) {
	res, err := c.get(ctx, c.groupsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch institutes: %w", err)
	}
	institutes, err := ParseInstitutes(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w (page title %q)", err, res.Title)
	}
	c.log.Debugf("Found %d institutes", len(institutes))
	return institutes, nil
}

// Groups lists the groups of an institute; course 0 means every course.
func (c *Client) Groups(ctx context.Context, institute string, course int) ([]Group, error) {
	u, err := url.Parse(c.groupsURL)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("institute", institute)
	if course > 0 {
		params.Set("course", strconv.Itoa(course))
	}
	u.RawQuery = params.Encode()

	res, err := c.get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch groups of %s: %w", institute, err)
	}
	groups, err := ParseGroups(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w (page title %q)", err, res.Title)
	}
	if course > 0 {
		for i := range groups {
			if groups[i].Course == 0 {
				groups[i].Course = course
			}
		}
	}
	c.log.Debugf("Found %d groups for %s", len(groups), institute)
	return groups, nil
}

// ParseInstitutes reads the options of the institute selector. A page
// without the selector yields ErrUnexpectedPage.
func ParseInstitutes(body string) ([]Institute, error) {
	var out []Institute
	err := eachOption(body, `select[name="institute"]`, func(id, name string) {
		out = append(out, Institute{ID: id, Name: name})
	})
	return out, err
}

// ParseGroups reads the options of the group selector.
func ParseGroups(body string) ([]Group, error) {
	var out []Group
	err := eachOption(body, `select[name="group"]`, func(id, name string) {
		out = append(out, Group{ID: id, Name: name, Course: CourseOf(name)})
	})
	return out, err
}

func eachOption(body, selector string, fn func(id, name string)) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("%w: no %s", ErrUnexpectedPage, selector)
	}
	sel.Find("option").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("value")
		name := strings.TrimSpace(s.Text())
		if strings.TrimSpace(id) == "" || name == "" {
			return
		}
		fn(strings.TrimSpace(id), name)
	})
	return nil
}

// courseRegex matches the three-digit group number whose first digit is the course.
var courseRegex = regexp.MustCompile(`-(\d)\d{2}`)

// CourseOf derives the course from a group name such as "М8О-101БВ-24".
// It returns 0 when the name does not follow that pattern.
func CourseOf(name string) int {
	m := courseRegex.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
