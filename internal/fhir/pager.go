package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/researchportal/datashare-coordinator/internal/httpclient"
)

// ErrMissingBaseURL is returned when a next link must be resolved but the
// transport has no base URL configured.
var ErrMissingBaseURL = errors.New("no base URL configured to resolve next link")

// Pager follows a search bundle's next links and yields successive pages of
// entries. It performs no retries; transport failures surface to the caller.
//
// The initial request carries the initial search parameters; every follow-up
// request uses the next-link cursor verbatim and MUST NOT re-send the
// parameters, as they are already embedded in the cursor.
type Pager struct {
	client httpclient.Client
	cursor string
	params url.Values
	first  bool
	done   bool
}

// NewPager creates a pager for the given search path and parameters.
func NewPager(client httpclient.Client, path string, params url.Values) *Pager {
	return &Pager{
		client: client,
		cursor: path,
		params: params,
		first:  true,
	}
}

// Next fetches pages until one with entries is found, returning its entries.
// ok is false when the feed is exhausted. Empty pages are skipped but their
// next links are still followed.
func (p *Pager) Next(ctx context.Context) (entries []BundleEntry, ok bool, err error) {
	for !p.done {
		var params url.Values
		if p.first {
			params = p.params
			p.first = false
		}

		body, err := p.client.Get(ctx, p.cursor, params)
		if err != nil {
			p.done = true
			return nil, false, err
		}

		var bundle Bundle
		if err := json.Unmarshal(body, &bundle); err != nil {
			p.done = true
			return nil, false, fmt.Errorf("failed to decode search bundle: %w", err)
		}

		next := bundle.NextLink()
		if next == "" {
			p.done = true
		} else {
			cursor, err := p.resolveNext(next)
			if err != nil {
				p.done = true
				return nil, false, err
			}
			p.cursor = cursor
		}

		if len(bundle.Entry) > 0 {
			return bundle.Entry, true, nil
		}
	}
	return nil, false, nil
}

// resolveNext strips the transport's base URL prefix from the next link so
// the follow-up request goes through the same transport; a next link pointing
// elsewhere is used verbatim.
func (p *Pager) resolveNext(next string) (string, error) {
	base := p.client.BaseURL()
	if base == "" {
		return "", ErrMissingBaseURL
	}
	if strings.HasPrefix(next, base) {
		return strings.TrimPrefix(next, base), nil
	}
	return next, nil
}
