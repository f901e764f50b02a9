package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

const questionSheet = "Questions"

// Export writes the bank as a spreadsheet: Number, Text, A..J, Correct
func (s *questionService) Export(ctx context.Context, w io.Writer) error {
	questions, err := s.repo.Question().List(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", questionSheet); err != nil {
		return fmt.Errorf("failed to prepare sheet: %w", err)
	}

	header := []interface{}{"Number", "Text"}
	for _, letter := range models.VariantLetters {
		header = append(header, string(letter))
	}
	header = append(header, "Correct")
	if err := f.SetSheetRow(questionSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, q := range questions {
		row := make([]interface{}, 0, len(header))
		row = append(row, q.Number, q.Text)

		byLetter := make(map[string]string, models.MaxVariants)
		for _, v := range q.Variants() {
			byLetter[v.Letter] = v.Text
		}
		for _, letter := range models.VariantLetters {
			row = append(row, byLetter[string(letter)])
		}
		row = append(row, q.CorrectAnswer)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(questionSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write question %d: %w", q.Number, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Import adds one question per spreadsheet row. Columns are located by
// header name (Text, A..J, Correct); other columns are ignored. Rows that
// fail validation are reported and skipped.
func (s *questionService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, newFieldValidationError("file", "xlsx", "file is not a readable xlsx workbook")
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, newFieldValidationError("file", "required", "workbook is empty")
	}

	columns := importColumns(rows[0])
	if _, ok := columns["text"]; !ok {
		return nil, newFieldValidationError("file", "header", "header row must contain a Text column")
	}

	result := &ImportResult{Failed: []ImportRowError{}}
	for i, row := range rows[1:] {
		rowNumber := i + 2
		req := importRequest(row, columns)
		if req.Text == "" && len(req.Variants) == 0 {
			continue
		}

		if _, err := s.Add(ctx, req, nil); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return result, fmt.Errorf("row %d: %w", rowNumber, err)
			}
			result.Failed = append(result.Failed, ImportRowError{
				Row:     rowNumber,
				Errors:  verr.Errors.Messages(),
				Snippet: snippet(req.Text),
			})
			continue
		}
		result.Created++
	}

	s.logger.Info("Questions imported", "created", result.Created, "failed", len(result.Failed))
	return result, nil
}

func importColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func importRequest(row []string, columns map[string]int) *CreateQuestionRequest {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	req := &CreateQuestionRequest{
		Text:          cell("text"),
		CorrectAnswer: strings.ToUpper(cell("correct")),
	}
	for _, letter := range models.VariantLetters {
		if text := cell(strings.ToLower(string(letter))); text != "" {
			req.Variants = append(req.Variants, VariantInput{Letter: string(letter), Text: text})
		}
	}
	return req
}

func snippet(s string) string {
	const limit = 60
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
