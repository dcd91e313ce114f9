package catalog

// SearchResponse is the JSON body a catalog backend returns for a search or
// a page of an existing search.
type SearchResponse struct {
	SearchID     string `json:"search_id,omitempty"`
	Page         int    `json:"page"`
	TotalResults int    `json:"total_results"`
	TotalPages   int    `json:"total_pages"`
	Results      []Item `json:"results"`

	// Redirect is set when the search matched exactly one record.
	Redirect   bool   `json:"redirect,omitempty"`
	RedirectID string `json:"redirect_id,omitempty"`

	// Error is a backend error code; a response carrying one has no page.
	Error string `json:"error,omitempty"`
}

// ResultPage converts the response to a page. It returns nil for redirects
// and error responses.
func (r *SearchResponse) ResultPage() *ResultPage {
	if r == nil || r.Redirect || r.Error != "" {
		return nil
	}
	items := r.Results
	if items == nil {
		items = []Item{}
	}
	return &ResultPage{
		Items:        items,
		Page:         r.Page,
		TotalResults: r.TotalResults,
		TotalPages:   r.TotalPages,
	}
}
