package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Sternrassler/opac-search-client/pkg/catalog"
)

// textPresenter prints controller signals as plain text.
type textPresenter struct {
	mu  sync.Mutex
	out io.Writer
}

func newTextPresenter(out io.Writer) *textPresenter {
	return &textPresenter{out: out}
}

func (p *textPresenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *textPresenter) LoadingStarted() {
	p.printf("Searching...\n")
}

func (p *textPresenter) Loaded(page *catalog.ResultPage) {
	if page.IsEmpty() {
		p.printf("No results.\n")
		return
	}

	var b strings.Builder
	if page.TotalPages > 0 {
		fmt.Fprintf(&b, "Page %d of %d (%d results)\n", page.Page, page.TotalPages, page.TotalResults)
	} else {
		fmt.Fprintf(&b, "Page %d\n", page.Page)
	}
	for i, item := range page.Items {
		fmt.Fprintf(&b, "%3d. %s", i+1, item.Title)
		if item.Author != "" {
			fmt.Fprintf(&b, " / %s", item.Author)
		}
		if item.Year != "" {
			fmt.Fprintf(&b, " (%s)", item.Year)
		}
		b.WriteByte('\n')
	}
	p.printf("%s", b.String())
}

func (p *textPresenter) ConnectivityError(message string) {
	if message == "" {
		p.printf("The search failed. Try again with r.\n")
		return
	}
	p.printf("Error: %s\n", message)
}

func (p *textPresenter) Redirect(itemID string) {
	if itemID == "" {
		p.printf("The search matched a single record.\n")
		return
	}
	p.printf("The search matched a single record: %s\n", itemID)
}

func (p *textPresenter) ItemSelected(index int, itemID string) {
	if itemID == "" {
		p.printf("Selected #%d (no record id)\n", index+1)
		return
	}
	p.printf("Selected #%d: %s\n", index+1, itemID)
}
