package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
)

// maxErrorBody caps how much of a failed response body is kept for logging.
const maxErrorBody = 4096

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// page is the envelope shared by every paginated Bitbucket collection.
type page[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next"`
}

// TransportError reports a request that did not produce a success response.
// It aborts the fetch stream it occurred in and nothing else.
type TransportError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Pages lazily walks a cursor-paginated collection starting at rawURL.
//
// params seed the first request only; the server embeds them into the "next"
// cursor of every following page. The sequence ends on the first empty page,
// on a page without a "next" cursor, or on the first error, which is yielded
// once as the final element.
//
// When keep is non-nil, the first item for which it returns false ends the
// sequence: that item is not yielded, the rest of its page is skipped and no
// further page is requested.
func Pages[T any](ctx context.Context, client Doer, rawURL string, params url.Values, keep func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		next, query := rawURL, params
		for next != "" {
			p, err := fetchPage[T](ctx, client, next, query)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			query = nil

			if len(p.Values) == 0 {
				return
			}
			for _, item := range p.Values {
				if keep != nil && !keep(item) {
					return
				}
				if !yield(item, nil) {
					return
				}
			}
			next = p.Next
		}
	}
}

func fetchPage[T any](ctx context.Context, client Doer, rawURL string, params url.Values) (*page[T], error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{URL: u.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var p page[T]
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode page from %s: %w", u.String(), err)
	}
	return &p, nil
}
