package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TechnicalPayload is category-specific structured data attached to a job.
// MotorPayload is the only populated variant; every other category, and any
// payload that cannot be read at all, is an EmptyPayload.
type TechnicalPayload interface {
	Category() Category
	isTechnicalPayload()
}

// EmptyPayload carries no technical data.
type EmptyPayload struct {
	Cat Category
}

// Category returns the job category the empty payload stands in for.
func (p EmptyPayload) Category() Category {
	return p.Cat
}

func (EmptyPayload) isTechnicalPayload() {}

// MotorPayload holds winding-shop data for electric motors and pumps.
type MotorPayload struct {
	Power           string         `json:"power,omitempty"`
	PowerUnit       string         `json:"powerUnit,omitempty"`
	Phase           string         `json:"phase,omitempty"`
	StarterLength   string         `json:"starterLength,omitempty"`
	StarterDiameter string         `json:"starterDiameter,omitempty"`
	Speed           string         `json:"speed,omitempty"`
	Capacitor       string         `json:"capacitor,omitempty"`
	Current         string         `json:"current,omitempty"`
	Coils           MotorCoils     `json:"coilDetails"`
	PartsReplaced   []ReplacedPart `json:"partsReplaced"`
	Remarks         string         `json:"remarks,omitempty"`
	WarrantyInfo    string         `json:"warrantyInfo,omitempty"`
}

// Category always reports CategoryMotor.
func (MotorPayload) Category() Category {
	return CategoryMotor
}

func (MotorPayload) isTechnicalPayload() {}

// MotorCoils groups the winding specs per stage.
type MotorCoils struct {
	Running  *CoilWinding `json:"running"`
	Starting *CoilWinding `json:"starting"`
}

// CoilWinding is the winding record for one stage.
type CoilWinding struct {
	Rows            []CoilRow `json:"rows"`
	TotalGauge      string    `json:"totalGauge,omitempty"`
	TotalWeight     string    `json:"totalWeight,omitempty"`
	ConnectionTypes []string  `json:"connectionTypes"`
}

// CoilRow is one turns/gauge/weight line.
type CoilRow struct {
	Turns     string `json:"turns,omitempty"`
	WireGauge string `json:"wireGauge,omitempty"`
	Weight    string `json:"weight,omitempty"`
}

// ReplacedPart is a part swapped during repair.
type ReplacedPart struct {
	Name  string           `json:"name"`
	Qty   int              `json:"qty"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// EncodeTechnicalPayload serialises p for storage. Empty payloads encode to nil.
func EncodeTechnicalPayload(p TechnicalPayload) ([]byte, error) {
	motor, ok := p.(MotorPayload)
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(motor)
	if err != nil {
		return nil, fmt.Errorf("marshal technical payload: %w", err)
	}
	return data, nil
}

// DecodeTechnicalPayload reads a stored or submitted payload for category.
// Malformed fields degrade to their zero value instead of failing the whole
// payload.
func DecodeTechnicalPayload(category Category, raw []byte) TechnicalPayload {
	if category != CategoryMotor {
		return EmptyPayload{Cat: category}
	}
	fields, ok := decodeObject(raw)
	if !ok {
		return EmptyPayload{Cat: category}
	}

	var p MotorPayload
	p.Power = stringField(fields, "power")
	p.PowerUnit = stringField(fields, "powerUnit")
	p.Phase = stringField(fields, "phase")
	p.StarterLength = stringField(fields, "starterLength")
	p.StarterDiameter = stringField(fields, "starterDiameter")
	p.Speed = stringField(fields, "speed")
	p.Capacitor = stringField(fields, "capacitor")
	p.Current = stringField(fields, "current")
	p.Remarks = stringField(fields, "remarks")
	p.WarrantyInfo = stringField(fields, "warrantyInfo")

	if coils, ok := decodeObject(fields["coilDetails"]); ok {
		p.Coils.Running = decodeWinding(coils["running"])
		p.Coils.Starting = decodeWinding(coils["starting"])
	}
	p.PartsReplaced = decodeParts(fields["partsReplaced"])
	return p
}

func decodeWinding(raw json.RawMessage) *CoilWinding {
	fields, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	w := &CoilWinding{
		TotalGauge:  stringField(fields, "totalGauge"),
		TotalWeight: stringField(fields, "totalWeight"),
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(fields["rows"], &rows); err == nil {
		for _, r := range rows {
			rf, ok := decodeObject(r)
			if !ok {
				continue
			}
			w.Rows = append(w.Rows, CoilRow{
				Turns:     stringField(rf, "turns"),
				WireGauge: stringField(rf, "wireGauge"),
				Weight:    stringField(rf, "weight"),
			})
		}
	}
	var conns []json.RawMessage
	if err := json.Unmarshal(fields["connectionTypes"], &conns); err == nil {
		for _, c := range conns {
			if s, ok := scalarString(c); ok && s != "" {
				w.ConnectionTypes = append(w.ConnectionTypes, s)
			}
		}
	}
	return w
}

func decodeParts(raw json.RawMessage) []ReplacedPart {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	parts := make([]ReplacedPart, 0, len(items))
	for _, item := range items {
		f, ok := decodeObject(item)
		if !ok {
			continue
		}
		part := ReplacedPart{Name: stringField(f, "name")}
		if qty, ok := scalarString(f["qty"]); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(qty)); err == nil {
				part.Qty = n
			}
		}
		if price, ok := scalarString(f["price"]); ok && price != "" {
			if d, err := decimal.NewFromString(price); err == nil {
				part.Price = &d
			}
		}
		if part.Name == "" && part.Qty == 0 && part.Price == nil {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	s, _ := scalarString(fields[key])
	return s
}

// scalarString accepts strings and numbers; legacy rows stored numbers for
// some free-form fields.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
