// Package whttp is a small rate-limited, retrying HTTP client for plain page
// fetches.
package whttp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/schedscope/schedscope/internal/utils"
)

const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Header struct {
	Name  string
	Value string
}

// Request is a GET of URL with extra headers.
type Request struct {
	URL     string
	Headers []Header
}

// Response carries the body and, for HTML pages, the document title.
type Response struct {
	StatusCode     int
	ResponseLength int
	Title          string
	Body           string
}

type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

// NewClient returns a client sending at most rps requests per second and
// retrying failed requests up to retries times. rps <= 0 disables limiting.
func NewClient(rps float64, retries int, log logrus.FieldLogger) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = printfLogger{utils.OrDiscard(log)}
	rc.RetryMax = retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{http: rc, limiter: rate.NewLimiter(limit, 1)}
}

// printfLogger routes retryablehttp's messages to debug level.
type printfLogger struct{ l logrus.FieldLogger }

func (p printfLogger) Printf(format string, args ...interface{}) {
	p.l.Debugf(format, args...)
}

func (c *Client) Send(ctx context.Context, wReq *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, wReq.URL, nil)
	if err != nil {
		return nil, err
	}

	// Set common headers
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Cache-Control", "no-transform")
	req.Header.Set("Accept-Language", "ru,en")

	// Set custom headers
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	wRes := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
	}
	if title, ok := getHTMLTitle(wRes.Body); ok {
		wRes.Title = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}
	wRes.ResponseLength = utf8.RuneCountInString(wRes.Body)
	return wRes, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
