package parse

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/models"
)

// detailPath returns the kind-specific href substring that marks a detail
// link in the results table.
func detailPath(kind models.EntityKind, site config.SiteConfig) string {
	if kind == models.KindBusiness {
		return site.BusinessDetailPath
	}
	return site.CompanyDetailPath
}

// containerID returns the kind-specific element id of the detail container.
func containerID(kind models.EntityKind, site config.SiteConfig) string {
	if kind == models.KindBusiness {
		return site.BusinessContainerID
	}
	return site.CompanyContainerID
}

// FindDetailLink parses the search-results table and returns the detail-page
// URL of the best matching row. A search for one ID can return several rows
// (historical registrations, branch records); the row with the most recent
// approval-change date wins. The raw date strings are same-length formatted
// ("113/06/15"), so a lexicographic comparison orders them correctly.
//
// The second return is false when the table, the date column, or any
// qualifying row is absent. Interstitial markers are NOT handled here; run
// Classify first.
func FindDetailLink(body []byte, kind models.EntityKind, site config.SiteConfig) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	table := doc.Find("table#" + site.ResultTableID)
	if table.Length() == 0 {
		return "", false
	}

	// Locate the approval-change date column by its header label; a markup
	// change that drops the label means dates can't be trusted, so no row
	// qualifies.
	dateIdx := -1
	table.Find("tr").First().Find("th, td").EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if strings.Contains(strings.TrimSpace(cell.Text()), site.ChangeDateLabel) {
			dateIdx = i
			return false
		}
		return true
	})
	if dateIdx < 0 {
		return "", false
	}

	wantPath := detailPath(kind, site)
	bestHref := ""
	bestDate := ""

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td")
		if cells.Length() < 7 || cells.Length() <= dateIdx {
			return
		}
		href, ok := row.Find("a").First().Attr("href")
		if !ok || !strings.Contains(href, wantPath) {
			return
		}
		date := strings.TrimSpace(cells.Eq(dateIdx).Text())
		if date == "" {
			return
		}
		if bestHref == "" || date > bestDate {
			bestHref = href
			bestDate = date
		}
	})

	if bestHref == "" {
		return "", false
	}
	return bestHref, true
}
