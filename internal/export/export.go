// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export flattens a result collection into a table for
// spreadsheets and downstream analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatXLSX, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, xlsx or yaml)", s)
}

// Layout selects how results become rows.
type Layout string

const (
	// LayoutTraits writes one row per exposure or outcome.
	LayoutTraits Layout = "traits"

	// LayoutAffiliation writes one row per result with institution and country.
	LayoutAffiliation Layout = "affiliation"
)

// DetectLayout picks the affiliation layout when any result carries an
// institution or country field, and the traits layout otherwise.
func DetectLayout(results []types.ExtractionResult) Layout {
	for _, r := range results {
		if _, ok := r.Fields[types.KeyInstitution]; ok {
			return LayoutAffiliation
		}
		if _, ok := r.Fields[types.KeyCountry]; ok {
			return LayoutAffiliation
		}
	}
	return LayoutTraits
}

// Table is a header plus string rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Flatten converts results into a Table. In the traits layout a result with
// no exposures and no outcomes still yields one row so its identifier is
// visible.
func Flatten(results []types.ExtractionResult, layout Layout) (Table, error) {
	switch layout {
	case LayoutAffiliation:
		return flattenAffiliation(results)
	case LayoutTraits, "":
		return flattenTraits(results)
	default:
		return Table{}, fmt.Errorf("unknown layout %q", layout)
	}
}

func flattenTraits(results []types.ExtractionResult) (Table, error) {
	t := Table{Header: []string{"identifier", "role", "trait_id", "trait", "category", "methods", "results_null", "results_non_null"}}
	for _, r := range results {
		exposures, err := r.Traits(types.KeyExposures)
		if err != nil {
			return Table{}, err
		}
		outcomes, err := r.Traits(types.KeyOutcomes)
		if err != nil {
			return Table{}, err
		}
		methods, err := r.Methods()
		if err != nil {
			return Table{}, err
		}
		tally, err := r.Tally()
		if err != nil {
			return Table{}, err
		}

		var null, nonNull string
		if tally != nil {
			null, nonNull = strconv.Itoa(tally.Null), strconv.Itoa(tally.NonNull)
		}
		tail := []string{strings.Join(methods, "; "), null, nonNull}

		row := func(role string, tr types.Trait) []string {
			return append([]string{r.Identifier, role, string(tr.ID), tr.Trait, tr.Category}, tail...)
		}
		if len(exposures) == 0 && len(outcomes) == 0 {
			t.Rows = append(t.Rows, row("", types.Trait{}))
			continue
		}
		for _, tr := range exposures {
			t.Rows = append(t.Rows, row("exposure", tr))
		}
		for _, tr := range outcomes {
			t.Rows = append(t.Rows, row("outcome", tr))
		}
	}
	return t, nil
}

func flattenAffiliation(results []types.ExtractionResult) (Table, error) {
	t := Table{Header: []string{"identifier", "institution", "country"}}
	for _, r := range results {
		inst, country, err := r.Affiliation()
		if err != nil {
			return Table{}, err
		}
		t.Rows = append(t.Rows, []string{r.Identifier, inst, country})
	}
	return t, nil
}

// Write encodes t in format.
func Write(w io.Writer, t Table, format Format, sheet string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t, sheet)
	case FormatYAML:
		return WriteYAML(w, t)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteCSV writes the header and rows as RFC 4180 CSV.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}
	return nil
}

// WriteXLSX writes t as a single-sheet workbook with a bold, frozen header.
func WriteXLSX(w io.Writer, t Table, sheet string) error {
	if sheet == "" {
		sheet = "results"
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, t.Header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("row %d: %w", n, err)
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("writing row %d: %w", n, err)
	}
	return nil
}

// WriteYAML writes the rows as a list of header-keyed mappings.
func WriteYAML(w io.Writer, t Table) error {
	docs := make([]yaml.Node, 0, len(t.Rows))
	for _, row := range t.Rows {
		n := yaml.Node{Kind: yaml.MappingNode}
		for i, h := range t.Header {
			var v string
			if i < len(row) {
				v = row[i]
			}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: h},
				&yaml.Node{Kind: yaml.ScalarNode, Value: v, Tag: "!!str"})
		}
		docs = append(docs, n)
	}
	list := yaml.Node{Kind: yaml.SequenceNode}
	for i := range docs {
		list.Content = append(list.Content, &docs[i])
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&list); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}
