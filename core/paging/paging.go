// Package paging derives the visible page of an ordered collection.
package paging

// Ellipsis marks a gap in the page strip returned by VisiblePages.
const Ellipsis = 0

// Page describes one window over a collection of Total items.
// Items [Start, End) are on the page.
type Page struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	Count      int  `json:"count"`
	Start      int  `json:"-"`
	End        int  `json:"-"`
}

// Window returns page p of a collection of n items, size items per page.
// p is clamped to [1, max(1, ceil(n/size))] so a shrinking collection never yields
// an empty page while a non-empty one exists. A size below 1 is treated as 1.
func Window(n, size, p int) Page {
	if size < 1 {
		size = 1
	}
	if n < 0 {
		n = 0
	}
	totalPages := (n + size - 1) / size
	last := totalPages
	if last < 1 {
		last = 1
	}
	if p > last {
		p = last
	}
	if p < 1 {
		p = 1
	}

	start := (p - 1) * size
	end := start + size
	if end > n {
		end = n
	}
	return Page{
		Page:       p,
		PerPage:    size,
		Total:      n,
		TotalPages: totalPages,
		HasNext:    p < totalPages,
		HasPrev:    p > 1,
		Count:      end - start,
		Start:      start,
		End:        end,
	}
}

// Slice returns the items on page p along with the page itself.
func Slice[T any](items []T, size, p int) ([]T, Page) {
	pg := Window(len(items), size, p)
	return items[pg.Start:pg.End], pg
}

// VisiblePages returns the page strip around the current page: at most max
// consecutive page numbers, plus the first and last pages when out of range,
// separated from the run by Ellipsis where pages are skipped.
func VisiblePages(current, totalPages, max int) []int {
	if totalPages < 1 {
		return []int{}
	}
	if max < 1 {
		max = 1
	}
	start := current - max/2
	if start < 1 {
		start = 1
	}
	end := start + max - 1
	if end > totalPages {
		end = totalPages
	}
	if end-start < max-1 {
		start = end - max + 1
		if start < 1 {
			start = 1
		}
	}

	pages := make([]int, 0, max+4)
	if start > 1 {
		pages = append(pages, 1)
		if start > 2 {
			pages = append(pages, Ellipsis)
		}
	}
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	if end < totalPages {
		if end < totalPages-1 {
			pages = append(pages, Ellipsis)
		}
		pages = append(pages, totalPages)
	}
	return pages
}
