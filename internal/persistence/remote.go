package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// Service actions.
const (
	actionFetch = "get-annotations"
	actionStore = "store-anotation"
)

// RemoteConfig configures the annotation service client.
type RemoteConfig struct {
	Endpoint          string        // e.g. https://api.example.com/user/pdf-anotaion
	Token             string        // bearer token
	Timeout           time.Duration // per request
	RequestsPerSecond float64       // save pacing, 0 disables
}

// RemotePage is one page as returned by the service, in canonical form.
type RemotePage struct {
	Page     int                    `json:"page"`
	Shapes   []annotation.Highlight `json:"shapes"`
	Comments []annotation.Comment   `json:"comments"`
}

// Annotations converts the page into annotations. A page with comments
// becomes a single group; otherwise each shape is its own annotation.
func (p RemotePage) Annotations() []annotation.Annotation {
	if len(p.Comments) > 0 && len(p.Shapes) > 0 {
		return []annotation.Annotation{{
			ID:         fmt.Sprintf("remote-%d", p.Page),
			PageNumber: p.Page,
			Type:       annotation.TypeGroup,
			Color:      p.Shapes[0].Color,
			Highlights: append([]annotation.Highlight(nil), p.Shapes...),
			Comments:   append([]annotation.Comment(nil), p.Comments...),
		}}
	}
	out := make([]annotation.Annotation, 0, len(p.Shapes))
	for i, h := range p.Shapes {
		if h.ID == "" {
			h.ID = fmt.Sprintf("remote-%d-%d", p.Page, i)
		}
		var a annotation.Annotation
		if h.Shape.Kind == geometry.KindFreehand {
			a = annotation.FreehandStroke(p.Page, h, "")
		} else if h.Shape.Rect != nil {
			a = annotation.AreaHighlight(p.Page, *h.Shape.Rect, h.Color)
			a.StrokeWidth = h.StrokeWidth
		} else {
			continue
		}
		a.ID = h.ID
		a.CreatedAt = h.CreatedAt
		out = append(out, a)
	}
	return out
}

// PageSnapshot is everything known about one page before a save.
type PageSnapshot struct {
	Page        int
	Server      RemotePage
	Annotations []annotation.Annotation
	Pending     []annotation.Highlight
}

// PageError is a failed page save.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("page %d: %v", e.Page, e.Err) }

func (e *PageError) Unwrap() error { return e.Err }

// SaveReport summarizes a save pass.
type SaveReport struct {
	Attempted int          `json:"attempted"`
	Saved     int          `json:"saved"`
	Skipped   int          `json:"skipped"`
	Failed    []*PageError `json:"-"`
}

// RemoteClient talks to the annotation service.
type RemoteClient struct {
	cfg     RemoteConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithRemoteHTTPClient replaces the default HTTP client.
func WithRemoteHTTPClient(hc *http.Client) RemoteOption {
	return func(c *RemoteClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(c *RemoteClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRemoteClient creates a service client.
func NewRemoteClient(cfg RemoteConfig, opts ...RemoteOption) (*RemoteClient, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid annotation service endpoint %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &RemoteClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RemoteClient) endpoint(action string, extra url.Values) string {
	u, _ := url.Parse(c.cfg.Endpoint)
	q := u.Query()
	q.Set("action", action)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *RemoteClient) do(req *http.Request) ([]byte, error) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("annotation service returned HTTP %d", resp.StatusCode)
	}
	return body, nil
}

// Fetch loads every stored page of a document, normalized to the canonical
// shape and comment representation.
func (c *RemoteClient) Fetch(ctx context.Context, document string) (map[int]RemotePage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint(actionFetch, url.Values{"pdf_id": {document}}), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching annotations of %s: %w", document, err)
	}

	var resp fetchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding annotations of %s: %w", document, err)
	}

	now := c.now()
	pages := make(map[int]RemotePage, len(resp.Data.Annotations))
	for _, entry := range resp.Data.Annotations {
		if entry.PageNumber < 1 {
			continue
		}
		page := RemotePage{Page: entry.PageNumber}
		for _, s := range entry.Shapes {
			page.Shapes = append(page.Shapes, s.canonical())
		}
		comments := entry.Comments
		if len(comments) == 0 {
			comments = entry.CommentsList
		}
		for _, cm := range comments {
			page.Comments = append(page.Comments, cm.canonical(now))
		}
		pages[entry.PageNumber] = page
	}
	syncOps.WithLabelValues("fetch", "ok").Inc()
	return pages, nil
}

// BuildPayload merges server, committed and pending shapes of a page into
// one deduplicated payload. A shape is dropped when its id or its
// fingerprint was already added, so a local copy of an id-less server
// shape collapses onto the server entry. Comments are deduplicated by id,
// or by text and timestamp. The second result is false when there is
// nothing to store.
func BuildPayload(document string, snap PageSnapshot) (Payload, bool) {
	p := Payload{PDFID: document, PageNumber: snap.Page, Shapes: []wireShape{}, Comments: []wireComment{}}
	seenIDs := make(map[string]bool)
	seenFP := make(map[string]bool)
	seenComments := make(map[string]bool)

	addShape := func(h annotation.Highlight) {
		fp := Fingerprint(h)
		if seenFP[fp] || (h.ID != "" && seenIDs[h.ID]) {
			return
		}
		seenFP[fp] = true
		if h.ID != "" {
			seenIDs[h.ID] = true
		}
		p.Shapes = append(p.Shapes, toWire(h))
	}
	addComment := func(cm annotation.Comment) {
		w := wireComment{Text: cm.Text, CreatedAt: cm.CreatedAt.UTC().Format(time.RFC3339)}
		key := "text:" + w.CreatedAt + ":" + w.Text
		if seenComments[key] || (cm.ID != "" && seenComments["id:"+cm.ID]) {
			return
		}
		seenComments[key] = true
		if cm.ID != "" {
			seenComments["id:"+cm.ID] = true
		}
		p.Comments = append(p.Comments, w)
	}

	for _, h := range snap.Server.Shapes {
		addShape(h)
	}
	for _, cm := range snap.Server.Comments {
		addComment(cm)
	}
	for _, a := range snap.Annotations {
		for _, h := range highlightsOf(a) {
			addShape(h)
		}
		for _, cm := range commentsOf(a) {
			addComment(cm)
		}
	}
	for _, h := range snap.Pending {
		addShape(h)
	}

	return p, len(p.Shapes) > 0 || len(p.Comments) > 0
}

// Save stores every page in ascending page order. A failing page is logged
// and recorded in the report; the remaining pages are still attempted. The
// error is non-nil only when ctx ends the pass early.
func (c *RemoteClient) Save(ctx context.Context, document string, pages []PageSnapshot) (SaveReport, error) {
	ordered := append([]PageSnapshot(nil), pages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Page < ordered[j].Page })

	var report SaveReport
	for _, snap := range ordered {
		payload, ok := BuildPayload(document, snap)
		if !ok {
			report.Skipped++
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return report, err
		}
		report.Attempted++

		if err := c.store(ctx, payload); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			syncOps.WithLabelValues("store", "error").Inc()
			c.logger.Error("failed to save annotations", "document", document, "page", snap.Page, "error", err)
			report.Failed = append(report.Failed, &PageError{Page: snap.Page, Err: err})
			continue
		}
		syncOps.WithLabelValues("store", "ok").Inc()
		c.logger.Info("saved annotations", "document", document, "page", snap.Page,
			"shapes", len(payload.Shapes), "comments", len(payload.Comments))
		report.Saved++
	}
	c.logger.Info("save finished", "document", document, "attempted", report.Attempted,
		"saved", report.Saved, "failed", len(report.Failed), "skipped", report.Skipped)
	return report, nil
}

func (c *RemoteClient) store(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(actionStore, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

// FailedPages returns the page numbers that failed to save.
func (r SaveReport) FailedPages() []int {
	out := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Page
	}
	return out
}

// Err joins the page errors, or returns nil when every page saved.
func (r SaveReport) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}
