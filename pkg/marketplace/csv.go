package marketplace

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// ImportCSV creates one record per data row. Rows are independent: a bad
// row is reported as "row N: reason" (N counts data rows from 1) and the
// remaining rows are still imported. A payload that is not valid CSV fails
// as a whole with ErrInvalidCSV.
func (s *service) ImportCSV(ctx context.Context, schema *Schema, r io.Reader, actor Actor) (*ImportResult, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	res := &ImportResult{Errors: []string{}}
	var skipped []string
	for i, row := range rows {
		data := make(map[string]any, len(row))
		for k, v := range row {
			k = strings.TrimPrefix(k, "\ufeff")
			if strings.TrimSpace(v) == "" {
				continue
			}
			if schema.isAttachment(k) {
				if i == 0 {
					skipped = append(skipped, k)
				}
				continue
			}
			data[k] = v
		}
		if len(data) == 0 {
			continue
		}
		if _, err := s.Create(ctx, schema, CreateRequest{Data: data, Actor: actor}); err != nil {
			msg := s.failureMessage(err, "entity", schema.Name, "row", i+1)
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", i+1, msg))
			continue
		}
		res.Created++
	}

	if len(skipped) > 0 {
		s.logger.Debug("ignoring attachment columns in csv import", "entity", schema.Name, "columns", skipped)
	}
	s.logger.Info("csv import finished", "entity", schema.Name, "created", res.Created, "failed", len(res.Errors))
	return res, nil
}

// ExportCSV writes every record matching req, ignoring its pagination.
func (s *service) ExportCSV(ctx context.Context, schema *Schema, req ListRequest, w io.Writer) error {
	req.Page, req.Limit = 1, 0
	page, err := s.List(ctx, schema, req)
	if err != nil {
		return err
	}

	columns := exportColumns(schema)
	out := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	if err := out.Write(columns); err != nil {
		return err
	}
	for _, rec := range page.Items {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cell(schema, rec, col)
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// WriteTemplate writes the import header and one example row.
func (s *service) WriteTemplate(schema *Schema, w io.Writer) error {
	header := schema.ImportColumns()
	example := make([]string, len(header))
	for i, name := range header {
		f, _ := schema.Field(name)
		example[i] = f.Example
	}

	out := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	if err := out.Write(header); err != nil {
		return err
	}
	if err := out.Write(example); err != nil {
		return err
	}
	out.Flush()
	return out.Error()
}

func exportColumns(schema *Schema) []string {
	cols := []string{ColumnID}
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}
	if schema.Moderated {
		cols = append(cols, ColumnStatus)
	}
	return append(cols, ColumnIsActive, ColumnCreatedAt, ColumnUpdatedAt)
}

func cell(schema *Schema, rec *Record, column string) string {
	switch column {
	case ColumnID:
		return rec.ID.String()
	case ColumnStatus:
		return string(rec.Status)
	case ColumnIsActive:
		return strconv.FormatBool(rec.IsActive)
	case ColumnCreatedAt:
		return rec.CreatedAt.UTC().Format(time.RFC3339)
	case ColumnUpdatedAt:
		return rec.UpdatedAt.UTC().Format(time.RFC3339)
	}

	v := rec.Attributes[column]
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if f, ok := schema.Field(column); ok && f.Kind == KindDate {
			return t.UTC().Format("2006-01-02")
		}
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
