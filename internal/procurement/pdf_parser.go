package procurement

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/assettrack/internal/extract"
)

// FieldRule extracts one header field or property from document text, with
// lines joined by newlines. Apply reports whether it set anything; rules never overwrite a value
// set by an earlier rule.
type FieldRule struct {
	Name    string
	Pattern *regexp.Regexp
	Apply   func(d *PurchaseOrderDraft, match []string) bool
}

const labelAlt = `(?:P\.?\s?O\.?\s*(?:Number|No|For)\b|GSTIN|Date|Request\s+Ref|Dept\.?\s+Name|Approved\s+By|Indent\s+No|Payment\s+Terms|Delivery\s+Terms|Sr\.?\s*No)`

// valueEnd stops a captured value at a delimiter, the next known label, the
// end of the line or the end of text.
const valueEnd = `(?:\s*[,;|]|\s+` + labelAlt + `|[ \t]*\n|$)`

// labelStart matches a value that is really the next label.
var labelStart = regexp.MustCompile(`(?i)^` + labelAlt)

// propertyLabels are captured verbatim into draft properties.
var propertyLabels = []struct {
	key     string
	pattern string
}{
	{"Request Ref", `Request\s+Ref(?:erence)?`},
	{"Dept Name", `Dept\.?\s+Name`},
	{"Approved By", `Approved\s+By`},
	{"Indent No", `Indent\s+No\.?`},
	{"Payment Terms", `Payment\s+Terms`},
	{"Delivery Terms", `Delivery\s+Terms`},
}

// gstinFormat is the state code, PAN, entity and checksum layout of an Indian GSTIN.
var gstinFormat = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// DefaultFieldRules is the rule set used by ParsePDFText.
var DefaultFieldRules = buildFieldRules()

func buildFieldRules() []FieldRule {
	rules := []FieldRule{
		{
			Name:    "po_number",
			Pattern: regexp.MustCompile(`(?i)\bP\.?\s?O\.?\s*(?:Number|No)\b\.?[ \t]*[:#\-]?[ \t]*([A-Z0-9][A-Z0-9\-/]*)`),
			Apply:   setPONumber,
		},
		{
			Name:    "po_number",
			Pattern: regexp.MustCompile(`\b(PO[-/][A-Z0-9][A-Z0-9\-/]*)`),
			Apply:   setPONumber,
		},
		{
			Name:    "vendor",
			Pattern: regexp.MustCompile(`(?i)\bP\.?\s?O\.?\s*For\b[ \t]*[:\-]?[ \t]*(.+?)` + valueEnd),
			Apply: func(d *PurchaseOrderDraft, m []string) bool {
				v := cleanValue(m[1])
				if d.VendorName != "" || v == "" {
					return false
				}
				d.VendorName = v
				return true
			},
		},
		{
			Name:    "gstin",
			Pattern: regexp.MustCompile(`(?i)\bGSTIN\s*(?:No\.?)?\s*[:\-]?\s*([0-9A-Z]{15})\b`),
			Apply: func(d *PurchaseOrderDraft, m []string) bool {
				if d.GSTIN != "" {
					return false
				}
				d.GSTIN = strings.ToUpper(m[1])
				if !gstinFormat.MatchString(d.GSTIN) {
					d.Warnings = append(d.Warnings, fmt.Sprintf("GSTIN %s does not match the standard format", d.GSTIN))
				}
				return true
			},
		},
		{
			Name:    "date",
			Pattern: regexp.MustCompile(`(?i)\bDate\s*[:\-]?\s*(\d{1,2})[-/ ]([A-Za-z]{3})[A-Za-z]*\.?[-/ ](\d{4})\b`),
			Apply:   setDate,
		},
	}
	for _, label := range propertyLabels {
		key := label.key
		rules = append(rules, FieldRule{
			Name:    key,
			Pattern: regexp.MustCompile(`(?i)\b` + label.pattern + `[ \t]*[:\-]?[ \t]*(.+?)` + valueEnd),
			Apply: func(d *PurchaseOrderDraft, m []string) bool {
				v := cleanValue(m[1])
				if v == "" {
					return false
				}
				if _, ok := d.Properties.Get(key); ok {
					return false
				}
				d.Properties.Set(key, v)
				return true
			},
		})
	}
	return rules
}

// setPONumber rejects captures without a digit so a blank "PO No:" label
// does not take the following word.
func setPONumber(d *PurchaseOrderDraft, m []string) bool {
	if d.PONumber != "" {
		return false
	}
	v := strings.ToUpper(strings.TrimRight(m[1], "-/"))
	if !strings.ContainsAny(v, "0123456789") || labelStart.MatchString(v) {
		return false
	}
	d.PONumber = v
	return true
}

// setDate keeps the caller's default when the day does not exist.
func setDate(d *PurchaseOrderDraft, m []string) bool {
	month := strings.ToUpper(m[2][:1]) + strings.ToLower(m[2][1:])
	t, err := time.Parse("2-Jan-2006", m[1]+"-"+month+"-"+m[3])
	if err != nil {
		return false
	}
	d.Date = t
	return true
}

func cleanValue(v string) string {
	return strings.Trim(strings.TrimSpace(v), " :,;|-")
}

var knownUOMs = `(?:Nos|No|Pcs|Pc|Pieces|Units|Unit|Each|Ea|Sets|Set|Box|Boxes|Pkt|Pack|Pair|Kg|Ltr|Mtr|Roll|Lot)`

const (
	itemSep = `(?:\s*[|\t]\s*|\s+)`
	itemNum = `[\d,]*\d(?:\.\d+)?`
)

// lineItemPatterns match "sr product qty [uom] price ..." records. The form
// with a unit is tried first so digits inside a product name are not taken
// as the quantity.
var lineItemPatterns = []*regexp.Regexp{lineItemPattern(""), lineItemPattern("?")}

func lineItemPattern(uomRepeat string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(\d{1,4})[.)]?` + itemSep + `(.+?)` + itemSep + `(` + itemNum + `)` + itemSep +
		`(?:(` + knownUOMs + `)\.?` + itemSep + `)` + uomRepeat + `(?:Rs\.?\s*|₹\s*)?(` + itemNum + `)(?:` + itemSep + `.*)?$`)
}

// ParsePDFText builds a draft from extracted lines. It never fails: fields
// that no rule matches stay empty and defaultDate is kept when no valid date
// is found.
func ParsePDFText(lines []string, defaultDate time.Time) PurchaseOrderDraft {
	return ParsePDFTextWith(DefaultFieldRules, lines, defaultDate)
}

// ParsePDFTextWith is ParsePDFText with a custom rule list.
func ParsePDFTextWith(rules []FieldRule, lines []string, defaultDate time.Time) PurchaseOrderDraft {
	d := PurchaseOrderDraft{Date: defaultDate, LineItems: []LineItemDraft{}}
	text := strings.Join(lines, "\n")
	for _, rule := range rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			if rule.Apply(&d, m) {
				break
			}
		}
	}

	next := 1
	for _, line := range lines {
		item, sr, ok := parseLineItem(line)
		if !ok {
			continue
		}
		if sr != next {
			d.Warnings = append(d.Warnings, fmt.Sprintf("skipped line %q: expected serial %d", line, next))
			continue
		}
		item.SrNo = next
		d.LineItems = append(d.LineItems, item)
		next++
	}
	return d
}

func parseLineItem(line string) (LineItemDraft, int, bool) {
	line = strings.TrimSpace(line)
	var m []string
	for _, re := range lineItemPatterns {
		if m = re.FindStringSubmatch(line); m != nil {
			break
		}
	}
	if m == nil {
		return LineItemDraft{}, 0, false
	}
	sr, err := strconv.Atoi(m[1])
	if err != nil {
		return LineItemDraft{}, 0, false
	}
	qty, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
	if err != nil || qty <= 0 {
		return LineItemDraft{}, 0, false
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(m[5], ",", ""))
	if err != nil {
		return LineItemDraft{}, 0, false
	}
	uom := DefaultUOM
	if m[4] != "" {
		uom = m[4]
	}
	product := strings.TrimSpace(m[2])
	return NewLineItemDraft(sr, product, qty, uom, price, DefaultGSTPercent), sr, true
}

// ScanPDF extracts and parses the PDF at path. A document without text
// yields a blank draft so the operator can fill it in by hand.
func ScanPDF(path string, defaultDate time.Time) (PurchaseOrderDraft, error) {
	lines, err := extract.ExtractLines(path)
	if err != nil {
		if errors.Is(err, extract.ErrNoText) {
			return PurchaseOrderDraft{
				Date:      defaultDate,
				LineItems: []LineItemDraft{},
				Warnings:  []string{"document contains no extractable text"},
			}, nil
		}
		return PurchaseOrderDraft{}, &ScanError{Path: path, Err: err}
	}
	return ParsePDFText(lines, defaultDate), nil
}
