package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/store"
)

// GSheetExporter pushes gradebook snapshots into Google Sheets on a cron
// schedule, one sheet per configured export.
type GSheetExporter struct {
	store     store.SyncStore
	scheduler *gocron.Scheduler
	services  map[string]*sheets.Service
	configs   map[string]app.GSheetConfig
}

func NewGSheetExporter(config *app.Config, st store.SyncStore) (*GSheetExporter, error) {
	ctx := context.Background()

	exporter := &GSheetExporter{
		store:     st,
		scheduler: gocron.NewScheduler(time.UTC),
		services:  make(map[string]*sheets.Service),
		configs:   make(map[string]app.GSheetConfig),
	}

	for name, cfg := range config.GSheet {
		svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets service for %s: %w", name, err)
		}
		exporter.services[name] = svc
		exporter.configs[name] = cfg

		name := name
		if _, err := exporter.scheduler.Cron(cfg.Schedule).Do(func() {
			if err := exporter.Export(name); err != nil {
				logger.Error.Printf("Gradebook export %s failed: %v", name, err)
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule export %s: %w", name, err)
		}
	}

	return exporter, nil
}

func (e *GSheetExporter) Start() {
	e.scheduler.StartAsync()
}

func (e *GSheetExporter) Stop() {
	e.scheduler.Stop()
}

// Export writes the full gradebook grid for one configured export, students
// down, assignments across.
func (e *GSheetExporter) Export(name string) error {
	cfg, ok := e.configs[name]
	if !ok {
		return fmt.Errorf("unknown export %s", name)
	}
	svc := e.services[name]

	rows, err := e.store.FetchGradebook(cfg.CourseID)
	if err != nil {
		return fmt.Errorf("failed to fetch gradebook: %w", err)
	}

	values := buildGrid(rows)

	writeRange := fmt.Sprintf("%s!A1", cfg.SheetName)
	_, err = svc.Spreadsheets.Values.Update(cfg.SheetID, writeRange,
		&sheets.ValueRange{Values: values}).ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to write gradebook: %w", err)
	}

	if cfg.TimestampCell != "" {
		timestamp := fmt.Sprintf("UPD: %s", time.Now().UTC().Format("2 January 15:04"))
		stampRange := fmt.Sprintf("%s!%s", cfg.SheetName, cfg.TimestampCell)
		_, err = svc.Spreadsheets.Values.Update(cfg.SheetID, stampRange,
			&sheets.ValueRange{Values: [][]interface{}{{timestamp}}}).ValueInputOption("RAW").Do()
		if err != nil {
			return fmt.Errorf("failed to write timestamp: %w", err)
		}
	}

	return nil
}

// buildGrid pivots flat gradebook rows into a sheet grid. Assignments keep
// their query order, students keep theirs.
func buildGrid(rows []store.GradebookRow) [][]interface{} {
	assignmentCols := make(map[string]int)
	var assignments []string
	studentRows := make(map[string]int)
	var students []string
	cells := make(map[string]map[string]interface{})

	for _, row := range rows {
		if _, ok := assignmentCols[row.Assignment]; !ok {
			assignmentCols[row.Assignment] = len(assignments)
			assignments = append(assignments, row.Assignment)
		}
		if _, ok := studentRows[row.Student]; !ok {
			studentRows[row.Student] = len(students)
			students = append(students, row.Student)
			cells[row.Student] = make(map[string]interface{})
		}
		cells[row.Student][row.Assignment] = cellValue(row)
	}

	header := make([]interface{}, 0, len(assignments)+1)
	header = append(header, "Student")
	for _, a := range assignments {
		header = append(header, a)
	}

	grid := [][]interface{}{header}
	for _, student := range students {
		line := make([]interface{}, 0, len(assignments)+1)
		line = append(line, student)
		for _, a := range assignments {
			if v, ok := cells[student][a]; ok {
				line = append(line, v)
			} else {
				line = append(line, "")
			}
		}
		grid = append(grid, line)
	}
	return grid
}

func cellValue(row store.GradebookRow) interface{} {
	if row.Score != nil {
		return *row.Score
	}
	if row.State == "submitted" || row.State == "pending_review" {
		return "✓"
	}
	return ""
}
