package parse

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/models"
)

// Field labels for the auxiliary sub-tables in the emitted record.
const (
	OfficersLabel = "董監事名單"
	ManagersLabel = "經理人名單"
)

var (
	// Business-activity code: one letter plus six alphanumerics, F401010 style.
	businessCodeRe = regexp.MustCompile(`[A-Z][A-Z0-9]\d{5}`)
	// ROC calendar date, e.g. 113年5月20日.
	rocDateRe = regexp.MustCompile(`^(\d{1,3})年(\d{1,2})月(\d{1,2})日$`)
	// Embedded script call linking a director's represented legal entity to
	// its own registration, e.g. onclick="queryByNo('12345678','某某股份有限公司')".
	linkedEntityRe = regexp.MustCompile(`queryByNo\('(\d{8})','([^']*)'\)`)
	// Trailing bare number left on activity descriptions by the site's sort
	// column, e.g. "電子商務　3".
	trailingDigitsRe = regexp.MustCompile(`[\s　]+\d+[\s　]*$`)
)

// ParseDetail parses a detail page into a structured record. The container
// is located by its kind-specific element id; each (label, value) table row
// gets a label-specific transform, and the director/manager sub-tables are
// parsed when present.
//
// An absent container yields an empty record, not an error; the caller
// decides whether that constitutes failure.
func ParseDetail(body []byte, kind models.EntityKind, site config.SiteConfig) *models.DetailRecord {
	rec := models.NewDetailRecord()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rec
	}
	container := doc.Find("#" + containerID(kind, site))
	if container.Length() == 0 {
		return rec
	}

	container.Find("table").Each(func(_ int, table *goquery.Selection) {
		header := strings.TrimSpace(table.Find("tr").First().Text())
		switch {
		case strings.Contains(header, "職稱"):
			if rows := parseOfficerTable(table); len(rows) > 0 {
				rec.Set(OfficersLabel, models.OfficersValue(rows))
			}
		case strings.Contains(header, "到職"):
			if rows := parseManagerTable(table); len(rows) > 0 {
				rec.Set(ManagersLabel, models.ManagersValue(rows))
			}
		default:
			parseFieldTable(table, rec)
		}
	})

	return rec
}

// parseFieldTable walks a (label, value) table and applies per-label
// transforms.
func parseFieldTable(table *goquery.Selection, rec *models.DetailRecord) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() != 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		if label == "" {
			return
		}
		cell := cells.Eq(1)

		switch {
		case strings.Contains(label, "名稱") || strings.Contains(label, "姓名"):
			setNameField(rec, label, cell)
		case strings.Contains(label, "所在地") || strings.Contains(label, "地址") || strings.Contains(label, "狀況"):
			rec.Set(label, models.StringValue(compactCellText(cell.Text())))
		case strings.Contains(label, "所營事業"):
			rec.Set(label, parseBusinessItems(cellTextWithBreaks(cell)))
		default:
			text := strings.TrimSpace(cell.Text())
			if d, ok := parseROCDate(text); ok {
				rec.Set(label, models.DateValue(d))
			} else {
				rec.Set(label, models.StringValue(text))
			}
		}
	})
}

// cellTextWithBreaks extracts a cell's text with <br> elements turned into
// newlines, which goquery's Text() otherwise swallows.
func cellTextWithBreaks(cell *goquery.Selection) string {
	clone := cell.Clone()
	clone.Find("br").ReplaceWithHtml("\n")
	return clone.Text()
}

// setNameField handles name-like cells: strip any trailing promotional/link
// markup, split on embedded line breaks, and keep every non-trivial segment.
// A multi-name value (several localized names in one cell) is preferred over
// a previously seen single name, never the other way around.
func setNameField(rec *models.DetailRecord, label string, cell *goquery.Selection) {
	clone := cell.Clone()
	clone.Find("a, script, img").Remove()
	clone.Find("br").ReplaceWithHtml("\n")

	var names []string
	for _, segment := range strings.FieldsFunc(clone.Text(), func(r rune) bool {
		return r == '\n' || r == '\r'
	}) {
		segment = strings.TrimSpace(segment)
		if len([]rune(segment)) > 2 {
			names = append(names, segment)
		}
	}

	switch len(names) {
	case 0:
		if text := strings.TrimSpace(clone.Text()); text != "" {
			if _, seen := rec.Get(label); !seen {
				rec.Set(label, models.StringValue(text))
			}
		}
	case 1:
		if existing, seen := rec.Get(label); seen && existing.Kind == models.ValNames {
			return // keep the multi-name form
		}
		rec.Set(label, models.StringValue(names[0]))
	default:
		rec.Set(label, models.NamesValue(names))
	}
}

// compactCellText keeps only the text before the first carriage return and
// strips all whitespace, including non-breaking spaces. Address and status
// cells carry trailing map links and legends after the first line.
func compactCellText(text string) string {
	if i := strings.IndexByte(text, '\r'); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == ' ' || r == '　' {
			return -1
		}
		return r
	}, text)
}

// parseBusinessItems splits an activity cell into (code, description) pairs
// using the code positions as segment boundaries. Cells without any code
// fall back to their non-empty lines verbatim.
func parseBusinessItems(text string) models.Value {
	locs := businessCodeRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		return models.NamesValue(lines)
	}

	items := make([]models.CodeItem, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		desc := strings.Join(strings.Fields(text[loc[1]:end]), " ")
		desc = trailingDigitsRe.ReplaceAllString(desc, "")
		items = append(items, models.CodeItem{
			Code:        text[loc[0]:loc[1]],
			Description: strings.TrimSpace(desc),
		})
	}
	return models.CodeListValue(items)
}

// parseROCDate parses a Minguo-calendar date string and converts it to
// Gregorian.
func parseROCDate(text string) (models.Date, bool) {
	m := rocDateRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return models.Date{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return models.DateFromROC(year, month, day), true
}

// parseOfficerTable parses the director/shareholder sub-table. Fixed layout:
// sequence, title, name, represented legal entity, investment amount.
func parseOfficerTable(table *goquery.Selection) []models.Officer {
	var rows []models.Officer
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		officer := models.Officer{
			Seq:    strings.TrimSpace(cells.Eq(0).Text()),
			Title:  strings.TrimSpace(cells.Eq(1).Text()),
			Name:   strings.TrimSpace(cells.Eq(2).Text()),
			Amount: strings.TrimSpace(cells.Eq(4).Text()),
		}
		if legal := parseLegalEntity(cells.Eq(3)); legal != nil {
			officer.Legal = legal
		}
		if officer.Name == "" && officer.Title == "" {
			return
		}
		rows = append(rows, officer)
	})
	return rows
}

// parseLegalEntity extracts the represented legal entity from a director
// cell. A cell linking to another registration encodes id and name in a
// script call; a plain cell carries just the name.
func parseLegalEntity(cell *goquery.Selection) *models.LinkedEntity {
	if html, err := goquery.OuterHtml(cell); err == nil {
		if m := linkedEntityRe.FindStringSubmatch(html); m != nil {
			return &models.LinkedEntity{ID: m[1], Name: m[2]}
		}
	}
	if text := strings.TrimSpace(cell.Text()); text != "" {
		return &models.LinkedEntity{Name: text}
	}
	return nil
}

// parseManagerTable parses the manager sub-table. Fixed layout: sequence,
// name, appointment date (ROC calendar).
func parseManagerTable(table *goquery.Selection) []models.Manager {
	var rows []models.Manager
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		manager := models.Manager{
			Seq:  strings.TrimSpace(cells.Eq(0).Text()),
			Name: strings.TrimSpace(cells.Eq(1).Text()),
		}
		if d, ok := parseROCDate(cells.Eq(2).Text()); ok {
			manager.OnboardDate = &d
		}
		if manager.Name == "" {
			return
		}
		rows = append(rows, manager)
	})
	return rows
}
