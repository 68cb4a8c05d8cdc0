// Package export writes the local attempt history to a spreadsheet for
// offline review.
package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"exam-practice-service/internal/domain"
)

// AttemptLister is the slice of the history store the exporter consumes.
type AttemptLister interface {
	List(ctx context.Context) ([]domain.AttemptRecord, error)
}

const sheetName = "Attempts"

var headers = []string{
	"Attempt ID", "Paper", "Year", "Date", "Score",
	"Total Questions", "Percentage", "Grade", "Time Taken (s)",
}

// WriteHistory writes every attempt, newest first, to an .xlsx file at path.
func WriteHistory(ctx context.Context, store AttemptLister, path string) (int, error) {
	attempts, err := store.List(ctx)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, fmt.Errorf("drop default sheet: %w", err)
	}

	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	for i, attempt := range attempts {
		row := i + 2
		values := []interface{}{
			attempt.ID,
			attempt.PaperID,
			attempt.PaperYear,
			attempt.Date.Format("2006-01-02 15:04:05"),
			attempt.Score,
			attempt.TotalQuestions,
			strconv.FormatFloat(attempt.Percentage, 'f', 1, 64),
			domain.Grade(attempt.Percentage),
			attempt.TimeTakenSecs,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return 0, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return len(attempts), nil
}
