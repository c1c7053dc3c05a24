// Package parser turns the rendered SWR-32 results table into typed filing
// records. Extract owns the only knowledge of the table's column layout;
// Normalize owns the date format and required-field rules.
package parser
