package classify

import (
	"regexp"

	"github.com/sdis/opsdash/internal/model"
)

// Relevance patterns, checked in this order.
var (
	incidentEndPattern   = regexp.MustCompile(`(?i)fin\s+d['’]incident`)
	incidentStartPattern = regexp.MustCompile(`(?i)d[ée]but\s+d['’]incident`)
	operationPattern     = regexp.MustCompile(
		`(?i)(?:avis\s+d['’]op[ée]ration|op[ée]ration\s+(?:de\s+maintenance\s+)?(?:programm[ée]e|planifi[ée]e))`)
)

// MatchOperationKind returns the kind of radio-network notice text is,
// if any. An incident end wins over a start, and both over an announcement.
func MatchOperationKind(text string) (model.OperationKind, bool) {
	switch {
	case incidentEndPattern.MatchString(text):
		return model.KindIncidentEnd, true
	case incidentStartPattern.MatchString(text):
		return model.KindIncidentStart, true
	case operationPattern.MatchString(text):
		return model.KindOperation, true
	default:
		return "", false
	}
}

const (
	timeExpr = `\d{1,2}[:h]\d{2}`
	dateExpr = `\d{2}/\d{2}/\d{4}`
)

var (
	operationNumberPattern = regexp.MustCompile(
		`(?i)op[ée]ration\s*(?:n[°o]\.?|num[ée]ro|#)\s*:?\s*(\d+)`)
	incidentNumberPattern = regexp.MustCompile(
		`(?i)(?:r[ée]f[ée]rence\s+op[ée]ration|op[ée]ration\s*(?:n[°o]\.?|num[ée]ro|#))\s*:?\s*(\d+)`)

	operationSitePattern = regexp.MustCompile(`(?im)^[ \t]*site[ \t]*:[ \t]*(.+)$`)
	incidentSitePattern  = regexp.MustCompile(
		`(?im)^[ \t]*(?:site|relais)(?:[ \t]+concern[ée])?[ \t]*:[ \t]*(.+)$`)

	operationWindowPattern = regexp.MustCompile(
		`(?i)(` + dateExpr + `\s+de\s+` + timeExpr + `\s+[àa]\s+` + timeExpr +
			`|du\s+` + dateExpr + `\s+` + timeExpr + `\s+au\s+` + dateExpr + `\s+` + timeExpr + `)`)
	incidentPointPattern = regexp.MustCompile(
		`(?i)(` + dateExpr + `\s+(?:[àa]\s+)?` + timeExpr + `)`)
)

// OperationFields are the values read from a radio-network notice.
// Nil means the label was not found; an empty string means it was found
// with no value after it.
type OperationFields struct {
	Number   *string
	Site     *string
	DateTime *string
}

func optional(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}

// ExtractOperationFields reads the operation number, site and announced
// window of an operation notice.
func ExtractOperationFields(text string) OperationFields {
	return OperationFields{
		Number:   optional(firstGroup(operationNumberPattern, text)),
		Site:     optional(firstGroup(operationSitePattern, text)),
		DateTime: optional(firstGroup(operationWindowPattern, text)),
	}
}

// ExtractIncidentFields reads the related operation number, site and
// timestamp of an incident start or end notice.
func ExtractIncidentFields(text string) OperationFields {
	return OperationFields{
		Number:   optional(firstGroup(incidentNumberPattern, text)),
		Site:     optional(firstGroup(incidentSitePattern, text)),
		DateTime: optional(firstGroup(incidentPointPattern, text)),
	}
}
