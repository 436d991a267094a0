package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/shipgrid/internal/vec"
	"github.com/google/uuid"
)

// Типы событий сетки корабля
const (
	EventBlockPlaced  = "BlockPlaced"
	EventBlockRemoved = "BlockRemoved"
	EventGridSaved    = "GridSaved"
	EventGridLoaded   = "GridLoaded"
)

// payloadVersion версия схемы полезной нагрузки событий сетки
const payloadVersion = 1

// BlockPlaced блок поставлен в сетку корабля
type BlockPlaced struct {
	ShipID   string   `json:"ship_id"`
	Pos      vec.Vec3 `json:"pos"`
	Asset    string   `json:"asset"`
	Rotation uint8    `json:"rotation"`
	Color    uint8    `json:"color"`
}

// BlockRemoved блок убран из сетки корабля
type BlockRemoved struct {
	ShipID string   `json:"ship_id"`
	Pos    vec.Vec3 `json:"pos"`
}

// GridPersisted сетка корабля сохранена или загружена
type GridPersisted struct {
	ShipID string `json:"ship_id"`
	Blocks int    `json:"blocks"`
	Bytes  int    `json:"bytes"`
}

// NewEnvelope сериализует payload в JSON и заворачивает в Envelope
func NewEnvelope(eventType, source string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает JSON-нагрузку события в v
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
