// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

// Package gardens reads and writes the garden dataset snapshot. The dataset
// is a JSON array of garden objects; only the basicInfo fields relevant to
// geocoding are parsed, everything else passes through a load/save round
// trip untouched.
package gardens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suzhouyl/yuanlin/spatial"
)

// Record is one garden object from the dataset. OfficialName, Address and
// GPS are the parsed view of basicInfo; the original bytes are retained so
// a round trip preserves every other field and its position.
type Record struct {
	OfficialName string
	Address      string
	GPS          *spatial.Point

	// Err is set when the record failed load validation. Invalid records
	// are skipped by enrichment and written back unchanged.
	Err error

	raw      json.RawMessage
	basicRaw json.RawMessage
}

// Valid reports whether the record passed load validation.
func (r *Record) Valid() bool {
	return r.Err == nil
}

// SetGPS assigns the record's coordinates, rounded to six decimal places.
func (r *Record) SetGPS(p spatial.Point) {
	rounded := p.Round6()
	r.GPS = &rounded
}

// Dataset is a full snapshot of the garden dataset.
type Dataset struct {
	Records []*Record
}

type basicInfoView struct {
	OfficialName *string        `json:"officialName"`
	Address      *string        `json:"address"`
	GPS          *spatial.Point `json:"gps"`
}

// Load reads and parses a dataset snapshot. In strict mode the first
// malformed record aborts the load; otherwise malformed records are kept
// as-is, marked invalid, and the rest proceed.
func Load(path string, strict bool) (*Dataset, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading dataset file: %w", err)
	}

	var rawRecords []json.RawMessage
	if err := json.Unmarshal(data, &rawRecords); err != nil {
		return nil, fmt.Errorf("dataset is not a JSON array: %w", err)
	}

	ds := &Dataset{Records: make([]*Record, 0, len(rawRecords))}

	for i, rawRecord := range rawRecords {
		record, err := parseRecord(rawRecord)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}

			record = &Record{Err: err, raw: rawRecord}
		}

		ds.Records = append(ds.Records, record)
	}

	return ds, nil
}

func parseRecord(raw json.RawMessage) (*Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}

	basicRaw, ok := fields["basicInfo"]
	if !ok {
		return nil, fmt.Errorf("record has no basicInfo object")
	}

	var basicFields map[string]json.RawMessage
	if err := json.Unmarshal(basicRaw, &basicFields); err != nil {
		return nil, fmt.Errorf("basicInfo is not a JSON object: %w", err)
	}

	var view basicInfoView
	if err := json.Unmarshal(basicRaw, &view); err != nil {
		return nil, fmt.Errorf("parsing basicInfo: %w", err)
	}

	if view.OfficialName == nil || strings.TrimSpace(*view.OfficialName) == "" {
		return nil, fmt.Errorf("basicInfo.officialName is missing or empty")
	}

	if view.Address == nil {
		return nil, fmt.Errorf("basicInfo.address is missing")
	}

	record := &Record{
		OfficialName: *view.OfficialName,
		Address:      *view.Address,
		GPS:          view.GPS,
		raw:          raw,
		basicRaw:     basicRaw,
	}

	return record, nil
}

// setObjectMember replaces or appends one member of a JSON object without
// disturbing the order of the other members.
func setObjectMember(obj json.RawMessage, key string, value json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	replaced := false

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading object key: %w", err)
		}

		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}

		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return nil, fmt.Errorf("reading member %q: %w", name, err)
		}

		if name == key {
			member = value
			replaced = true
		}

		if buf.Len() > 1 {
			buf.WriteByte(',')
		}

		encodedName, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("encoding member name %q: %w", name, err)
		}

		buf.Write(encodedName)
		buf.WriteByte(':')
		buf.Write(member)
	}

	if !replaced {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}

		encodedName, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("encoding member name %q: %w", key, err)
		}

		buf.Write(encodedName)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// marshalRecord returns the garden object with the gps member spliced into
// basicInfo when set. All other bytes come from the loaded snapshot, so
// member order is stable across round trips.
func (r *Record) marshalRecord() (json.RawMessage, error) {
	if r.basicRaw == nil || r.GPS == nil {
		return r.raw, nil
	}

	gps, err := json.Marshal(r.GPS)
	if err != nil {
		return nil, fmt.Errorf("marshaling gps: %w", err)
	}

	basic, err := setObjectMember(r.basicRaw, "gps", gps)
	if err != nil {
		return nil, fmt.Errorf("updating basicInfo: %w", err)
	}

	return setObjectMember(r.raw, "basicInfo", basic)
}

// Save writes the full snapshot back, pretty-printed.
func (ds *Dataset) Save(path string) error {
	out := make([]json.RawMessage, 0, len(ds.Records))

	for i, record := range ds.Records {
		raw, err := record.marshalRecord()
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", i, record.OfficialName, err)
		}

		out = append(out, raw)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling dataset: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing dataset file: %w", err)
	}

	return nil
}
