// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

// =============================================================================
// Filter Predicates
// =============================================================================

// FilterPredicate is a (column, operator, value) triple. On the wire it is a
// three-element JSON array, matching the vendor query-builder's filter shape:
//
//	["priority", ">", 2]
//	["due", "=", ["exactDay", "2024-01-15"]]
//
// Whether the operator is legal for the column is decided against the schema
// registry by the query translation layer, not here.
type FilterPredicate struct {
	Column   string
	Operator string
	Value    any
}

// UnmarshalJSON decodes the three-element array form.
func (p *FilterPredicate) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("filter must be a [column, operator, value] array: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("filter must have exactly 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &p.Column); err != nil {
		return fmt.Errorf("filter column must be a string: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &p.Operator); err != nil {
		return fmt.Errorf("filter operator must be a string: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &p.Value); err != nil {
		return fmt.Errorf("filter value is not valid JSON: %w", err)
	}
	return nil
}

// MarshalJSON encodes the three-element array form.
func (p FilterPredicate) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Column, p.Operator, p.Value})
}

// =============================================================================
// Date Values
// =============================================================================

// Date filter values are always tagged tuples, never bare ISO strings:
//
//	["exactDay", "2024-01-15"]
//	["exactTimestamp", "2024-01-15T09:30:00Z"]
//	["daysAgo", 7]
//	["daysFromNow", 3]
//
// A bare string has undefined semantics in the vendor store and is rejected
// at validation time.
const (
	DateExactDay       = "exactDay"
	DateExactTimestamp = "exactTimestamp"
	DateDaysAgo        = "daysAgo"
	DateDaysFromNow    = "daysFromNow"
)

// DateValue is a decoded, validated date filter value.
type DateValue struct {
	Tag string

	// Day/Timestamp is set for the exact tags, Days for the relative tags.
	Day       string
	Timestamp time.Time
	Days      int
}

// ParseDateValue validates a date filter value for column on behalf of the
// query translation layer. The returned apperr carries the offending
// column/operator/value.
func ParseDateValue(column, operator string, v any) (DateValue, error) {
	tuple, ok := v.([]any)
	if !ok {
		return DateValue{}, apperr.Validation(column, operator, v,
			"date filter on %q must be a tagged tuple such as [%q, \"2024-01-15\"], not a bare value", column, DateExactDay)
	}
	if len(tuple) != 2 {
		return DateValue{}, apperr.Validation(column, operator, v,
			"date tuple on %q must have exactly 2 elements", column)
	}
	tag, ok := tuple[0].(string)
	if !ok {
		return DateValue{}, apperr.Validation(column, operator, v,
			"date tuple tag on %q must be a string", column)
	}

	switch tag {
	case DateExactDay:
		day, ok := tuple[1].(string)
		if !ok {
			return DateValue{}, apperr.Validation(column, operator, v,
				"%s argument on %q must be a YYYY-MM-DD string", tag, column)
		}
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return DateValue{}, apperr.Validation(column, operator, v,
				"%s argument %q on %q is not a valid day: %v", tag, day, column, err)
		}
		return DateValue{Tag: tag, Day: day}, nil

	case DateExactTimestamp:
		raw, ok := tuple[1].(string)
		if !ok {
			return DateValue{}, apperr.Validation(column, operator, v,
				"%s argument on %q must be an RFC3339 string", tag, column)
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return DateValue{}, apperr.Validation(column, operator, v,
				"%s argument %q on %q is not a valid timestamp: %v", tag, raw, column, err)
		}
		return DateValue{Tag: tag, Timestamp: ts}, nil

	case DateDaysAgo, DateDaysFromNow:
		n, ok := tuple[1].(float64)
		if !ok || n != float64(int(n)) || n < 0 {
			return DateValue{}, apperr.Validation(column, operator, v,
				"%s argument on %q must be a non-negative integer", tag, column)
		}
		return DateValue{Tag: tag, Days: int(n)}, nil

	default:
		return DateValue{}, apperr.Validation(column, operator, v,
			"unknown date tuple tag %q on %q", tag, column)
	}
}

// Encode renders the value in the wire form the store client sends.
func (d DateValue) Encode() string {
	switch d.Tag {
	case DateExactDay:
		return fmt.Sprintf("%s:%s", d.Tag, d.Day)
	case DateExactTimestamp:
		return fmt.Sprintf("%s:%s", d.Tag, d.Timestamp.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s:%d", d.Tag, d.Days)
	}
}
