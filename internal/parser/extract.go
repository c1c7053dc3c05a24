package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// DefaultRowSelector matches PrimeFaces data rows, as opposed to header,
// paginator, or empty-message rows.
const DefaultRowSelector = "tr.ui-widget-content"

// columnFields maps cell positions to raw field names. Cell 0 is the unused
// leading cell (row toggler).
var columnFields = [...]string{
	"",
	crawler.FieldExceptionNumber,
	crawler.FieldSubmittalDate,
	crawler.FieldFilingNumber,
	crawler.FieldStatus,
	crawler.FieldFilingType,
	crawler.FieldOperatorNumber,
	crawler.FieldOperatorName,
	crawler.FieldProperty,
	crawler.FieldEffectiveDate,
	crawler.FieldExpirationDate,
	crawler.FieldDistrict,
}

// MinCells is the number of cells a data row must carry.
const MinCells = len(columnFields)

// Extractor selects data rows from a results-table fragment.
type Extractor struct {
	rowSelector string
}

// NewExtractor returns an Extractor using rowSelector, or DefaultRowSelector
// when empty.
func NewExtractor(rowSelector string) *Extractor {
	if strings.TrimSpace(rowSelector) == "" {
		rowSelector = DefaultRowSelector
	}
	return &Extractor{rowSelector: rowSelector}
}

// Extract parses html and returns one RawRecord per data row, in table order.
// Rows with fewer than MinCells cells are skipped. Parsing the same markup
// twice yields the same records.
func (e *Extractor) Extract(html string) ([]crawler.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapFragment(html)))
	if err != nil {
		return nil, &crawler.ValidationError{Field: "html", Err: err}
	}

	var records []crawler.RawRecord
	doc.Find(e.rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < MinCells {
			return
		}
		texts := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			texts = append(texts, cellText(cell))
		})
		records = append(records, rowRecord(texts))
	})
	return records, nil
}

// rowRecord maps positional cell text to field names. It is the single place
// that knows the upstream column order.
func rowRecord(cells []string) crawler.RawRecord {
	rec := make(crawler.RawRecord, len(columnFields)-1)
	for i, field := range columnFields {
		if field == "" {
			continue
		}
		rec[field] = cells[i]
	}
	return rec
}

// cellText collapses whitespace (including non-breaking spaces) and trims.
func cellText(cell *goquery.Selection) string {
	return strings.Join(strings.Fields(cell.Text()), " ")
}

// wrapFragment makes bare <tr> fragments parse as table rows; the HTML parser
// drops row and cell tags that appear outside a table.
func wrapFragment(html string) string {
	if strings.Contains(strings.ToLower(html), "<table") {
		return html
	}
	return "<table>" + html + "</table>"
}
