package api

import (
	"net/http"

	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/httputil"
)

// parseBody decodes a JSON request body.
func parseBody(r *http.Request, dest interface{}) error {
	return httputil.ParseJSON(r, dest)
}

// parseListFilter reads the common listing query parameters. Count is always
// enabled for listings; clients rely on it for pagination.
func parseListFilter(r *http.Request) (content.ListFilter, error) {
	filter := content.ListFilter{
		SortField:   r.URL.Query().Get("sort_field"),
		SortOrder:   r.URL.Query().Get("sort_order"),
		EnableCount: true,
	}

	var err error
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return content.ListFilter{}, err
	}
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", content.DefaultListLimit); err != nil {
		return content.ListFilter{}, err
	}
	if filter.FromDate, err = httputil.ParseQueryTime(r, "from_date"); err != nil {
		return content.ListFilter{}, err
	}
	if filter.ToDate, err = httputil.ParseQueryTime(r, "to_date"); err != nil {
		return content.ListFilter{}, err
	}
	return filter, nil
}
