package filestore

import (
	"bytes"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// DocumentJSON is the single document holding the whole data set
const DocumentJSON = "wotrack.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type document struct {
	WorkOrders map[string]*orderDocument `json:"work_orders"`
}

type orderDocument struct {
	Product     string                    `json:"product"`
	Quantity    int                       `json:"quantity"`
	Status      models.WorkOrderStatus    `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
	FinalizedAt *time.Time                `json:"finalized_at,omitempty"`
	ProcessList []string                  `json:"process_list"`
	Processes   map[string]*timerDocument `json:"processes"`
}

type timerDocument struct {
	AccumulatedSeconds float64            `json:"accumulated_seconds"`
	Status             models.TimerStatus `json:"status"`
	RunStartedAt       *time.Time         `json:"run_started_at"`
	LastUpdatedAt      time.Time          `json:"last_updated_at"`
}

// jsonCodec nests every timer under its work order in one document
type jsonCodec struct{}

func (jsonCodec) files() []string {
	return []string{DocumentJSON}
}

func (jsonCodec) decode(files map[string][]byte) (*dataset, error) {
	d := newDataset()
	content := files[DocumentJSON]
	if len(bytes.TrimSpace(content)) == 0 {
		return d, nil
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", DocumentJSON, err)
	}

	for id, od := range doc.WorkOrders {
		if od == nil {
			continue
		}
		status := od.Status
		if status == "" {
			status = models.WorkOrderActive
		}
		d.orders[id] = &models.WorkOrder{
			OrderNumber: id,
			CreatedAt:   od.CreatedAt,
			UpdatedAt:   od.CreatedAt,
			Product:     od.Product,
			Quantity:    od.Quantity,
			Status:      status,
			Processes:   od.ProcessList,
			FinalizedAt: od.FinalizedAt,
		}

		for name, td := range od.Processes {
			if td == nil {
				continue
			}
			if !td.Status.Valid() {
				return nil, fmt.Errorf("%s: work order %s process %q: invalid status %q", DocumentJSON, id, name, td.Status)
			}
			timer := &models.ProcessTimer{
				WorkOrderID:        id,
				ProcessName:        name,
				AccumulatedSeconds: td.AccumulatedSeconds,
				Status:             td.Status,
				RunStartedAt:       td.RunStartedAt,
				LastUpdatedAt:      td.LastUpdatedAt,
			}
			if timer.Status == models.TimerRunning && timer.RunStartedAt == nil {
				return nil, fmt.Errorf("%s: work order %s process %q: running without run_started_at", DocumentJSON, id, name)
			}
			if timer.Status != models.TimerRunning {
				timer.RunStartedAt = nil
			}
			d.timers[tracker.KeyOf(timer)] = timer
		}
	}
	return d, nil
}

func (jsonCodec) encode(d *dataset) (map[string][]byte, error) {
	doc := document{WorkOrders: make(map[string]*orderDocument, len(d.orders))}
	for id, o := range d.orders {
		doc.WorkOrders[id] = &orderDocument{
			Product:     o.Product,
			Quantity:    o.Quantity,
			Status:      o.Status,
			CreatedAt:   o.CreatedAt,
			FinalizedAt: o.FinalizedAt,
			ProcessList: o.Processes,
			Processes:   make(map[string]*timerDocument),
		}
	}
	for key, t := range d.timers {
		od, ok := doc.WorkOrders[key.WorkOrderID]
		if !ok {
			// orphaned timers are dropped with their work order
			continue
		}
		od.Processes[key.Process] = &timerDocument{
			AccumulatedSeconds: t.AccumulatedSeconds,
			Status:             t.Status,
			RunStartedAt:       t.RunStartedAt,
			LastUpdatedAt:      t.LastUpdatedAt,
		}
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return map[string][]byte{DocumentJSON: append(content, '\n')}, nil
}
