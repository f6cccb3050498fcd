package filestore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

const (
	WorkOrdersCSV    = "work_orders.csv"
	ProcessTimersCSV = "process_timers.csv"

	// legacyProcessSeparator joined process lists before they were written
	// as a JSON array
	legacyProcessSeparator = "|"
)

var (
	workOrderHeader    = []string{"order_number", "product", "quantity", "created_at", "status", "processes", "finalized_at"}
	processTimerHeader = []string{"work_order_id", "process_name", "accumulated_seconds", "status", "run_started_at", "last_updated_at"}
)

// csvCodec stores one row per work order and one row per timer
type csvCodec struct{}

func (csvCodec) files() []string {
	return []string{WorkOrdersCSV, ProcessTimersCSV}
}

func (csvCodec) decode(files map[string][]byte) (*dataset, error) {
	d := newDataset()

	orderRows, err := readRows(files[WorkOrdersCSV], workOrderHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", WorkOrdersCSV, err)
	}
	for i, row := range orderRows {
		order, err := parseWorkOrderRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", WorkOrdersCSV, i+2, err)
		}
		d.orders[order.OrderNumber] = order
	}

	timerRows, err := readRows(files[ProcessTimersCSV], processTimerHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ProcessTimersCSV, err)
	}
	for i, row := range timerRows {
		timer, err := parseTimerRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ProcessTimersCSV, i+2, err)
		}
		d.timers[tracker.KeyOf(timer)] = timer
	}

	return d, nil
}

func (csvCodec) encode(d *dataset) (map[string][]byte, error) {
	var orderRows [][]string
	for _, o := range d.sortedOrders() {
		processes, err := formatProcesses(o.Processes)
		if err != nil {
			return nil, fmt.Errorf("work order %s: %w", o.OrderNumber, err)
		}
		orderRows = append(orderRows, []string{
			o.OrderNumber,
			o.Product,
			strconv.Itoa(o.Quantity),
			formatTime(o.CreatedAt),
			string(o.Status),
			processes,
			formatTimePtr(o.FinalizedAt),
		})
	}

	var timerRows [][]string
	for _, t := range d.sortedTimers() {
		timerRows = append(timerRows, []string{
			t.WorkOrderID,
			t.ProcessName,
			strconv.FormatFloat(t.AccumulatedSeconds, 'f', -1, 64),
			string(t.Status),
			formatTimePtr(t.RunStartedAt),
			formatTime(t.LastUpdatedAt),
		})
	}

	orders, err := writeRows(workOrderHeader, orderRows)
	if err != nil {
		return nil, err
	}
	timers, err := writeRows(processTimerHeader, timerRows)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{WorkOrdersCSV: orders, ProcessTimersCSV: timers}, nil
}

func parseWorkOrderRow(row map[string]string) (*models.WorkOrder, error) {
	quantity, err := strconv.Atoi(row["quantity"])
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q", row["quantity"])
	}
	created, err := parseTime(row["created_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	finalized, err := parseTimePtr(row["finalized_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid finalized_at: %w", err)
	}

	status := models.WorkOrderStatus(row["status"])
	if status == "" {
		status = models.WorkOrderActive
	}
	processes, err := parseProcesses(row["processes"])
	if err != nil {
		return nil, fmt.Errorf("invalid processes: %w", err)
	}

	return &models.WorkOrder{
		OrderNumber: row["order_number"],
		CreatedAt:   created,
		UpdatedAt:   created,
		Product:     row["product"],
		Quantity:    quantity,
		Status:      status,
		Processes:   processes,
		FinalizedAt: finalized,
	}, nil
}

func parseTimerRow(row map[string]string) (*models.ProcessTimer, error) {
	accumulated := 0.0
	if row["accumulated_seconds"] != "" {
		v, err := strconv.ParseFloat(row["accumulated_seconds"], 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid accumulated_seconds %q", row["accumulated_seconds"])
		}
		accumulated = v
	}
	status := models.TimerStatus(row["status"])
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", row["status"])
	}
	started, err := parseTimePtr(row["run_started_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid run_started_at: %w", err)
	}
	updated, err := parseTime(row["last_updated_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid last_updated_at: %w", err)
	}
	if status == models.TimerRunning && started == nil {
		return nil, fmt.Errorf("running timer without run_started_at")
	}
	if status != models.TimerRunning {
		started = nil
	}

	return &models.ProcessTimer{
		WorkOrderID:        row["work_order_id"],
		ProcessName:        row["process_name"],
		AccumulatedSeconds: accumulated,
		Status:             status,
		RunStartedAt:       started,
		LastUpdatedAt:      updated,
	}, nil
}

func formatProcesses(processes []string) (string, error) {
	if len(processes) == 0 {
		return "", nil
	}
	b, err := json.Marshal(processes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseProcesses reads a JSON array, or a list joined by
// legacyProcessSeparator
func parseProcesses(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") {
		return strings.Split(s, legacyProcessSeparator), nil
	}
	var processes []string
	if err := json.Unmarshal([]byte(s), &processes); err != nil {
		return nil, err
	}
	return processes, nil
}

// readRows parses CSV content into rows keyed by column name. Columns are
// matched by header so files with reordered or extra columns still load.
func readRows(content []byte, required []string) ([]map[string]string, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeRows(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
