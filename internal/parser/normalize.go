package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// DateLayout is the month/day/year format used by the query tool. Single-digit
// months and days are accepted.
const DateLayout = "1/2/2006"

var errRequired = errors.New("required field is empty")

// Normalize validates raw and converts it into a typed Record. Values are
// trimmed first, so a whitespace-only required field counts as empty. It
// returns a *crawler.ValidationError naming the first offending field.
func Normalize(raw crawler.RawRecord) (crawler.Record, error) {
	raw = trimmed(raw)
	rec := crawler.Record{
		ExceptionNumber: raw[crawler.FieldExceptionNumber],
		FilingNumber:    raw[crawler.FieldFilingNumber],
		Status:          raw[crawler.FieldStatus],
		FilingType:      raw[crawler.FieldFilingType],
		OperatorNumber:  raw[crawler.FieldOperatorNumber],
		OperatorName:    raw[crawler.FieldOperatorName],
		Property:        raw[crawler.FieldProperty],
		District:        raw[crawler.FieldDistrict],
	}

	submittal, err := requiredDate(raw, crawler.FieldSubmittalDate)
	if err != nil {
		return crawler.Record{}, err
	}
	rec.SubmittalDate = submittal

	for _, field := range []string{crawler.FieldOperatorName, crawler.FieldDistrict} {
		if raw[field] == "" {
			return crawler.Record{}, &crawler.ValidationError{Field: field, Err: errRequired}
		}
	}

	if rec.EffectiveDate, err = optionalDate(raw, crawler.FieldEffectiveDate); err != nil {
		return crawler.Record{}, err
	}
	if rec.ExpirationDate, err = optionalDate(raw, crawler.FieldExpirationDate); err != nil {
		return crawler.Record{}, err
	}
	return rec, nil
}

func trimmed(raw crawler.RawRecord) crawler.RawRecord {
	out := make(crawler.RawRecord, len(raw))
	for field, value := range raw {
		out[field] = strings.TrimSpace(value)
	}
	return out
}

func requiredDate(raw crawler.RawRecord, field string) (time.Time, error) {
	value := raw[field]
	if value == "" {
		return time.Time{}, &crawler.ValidationError{Field: field, Err: errRequired}
	}
	return parseDate(field, value)
}

// optionalDate treats an empty cell as absent.
func optionalDate(raw crawler.RawRecord, field string) (*time.Time, error) {
	value := raw[field]
	if value == "" {
		return nil, nil
	}
	parsed, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseDate(field, value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &crawler.ValidationError{
			Field: field,
			Value: value,
			Err:   fmt.Errorf("want month/day/year: %w", err),
		}
	}
	return parsed, nil
}
