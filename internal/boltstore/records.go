package boltstore

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/roach88/archetype/internal/ir"
)

// entryRecord is the stored form of ir.Entry. Data stays raw JSON so key
// order and exact integers survive.
type entryRecord struct {
	SchemeID      int64           `json:"scheme_id"`
	SchemeVersion int             `json:"scheme_version"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     int64           `json:"created_at"`
	ModifiedAt    int64           `json:"modified_at"`
	ModifiedBy    int64           `json:"modified_by"`
}

func encodeScheme(sc ir.Scheme) ([]byte, error) {
	if sc.Fields == nil {
		sc.Fields = []ir.FieldDef{}
	}
	b, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("encode scheme: %w", err)
	}
	return b, nil
}

func decodeScheme(id int64, raw []byte) (ir.Scheme, error) {
	var sc ir.Scheme
	if err := json.Unmarshal(raw, &sc); err != nil {
		return ir.Scheme{}, fmt.Errorf("decode scheme %d: %w", id, err)
	}
	sc.ID = id
	if sc.Fields == nil {
		sc.Fields = []ir.FieldDef{}
	}
	return sc, nil
}

func encodeEntry(e ir.Entry) ([]byte, error) {
	data := []byte("{}")
	if e.Data != nil {
		b, err := ir.MarshalIRValue(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encode entry data: %w", err)
		}
		data = b
	}
	b, err := json.Marshal(entryRecord{
		SchemeID:      e.SchemeID,
		SchemeVersion: e.SchemeVersion,
		Data:          data,
		CreatedAt:     e.CreatedAt,
		ModifiedAt:    e.ModifiedAt,
		ModifiedBy:    e.ModifiedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return b, nil
}

func decodeEntry(id int64, raw []byte) (ir.Entry, error) {
	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ir.Entry{}, fmt.Errorf("decode entry %d: %w", id, err)
	}
	data, err := ir.UnmarshalIRObject(rec.Data)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("decode entry %d data: %w", id, err)
	}
	return ir.Entry{
		ID:            id,
		SchemeID:      rec.SchemeID,
		SchemeVersion: rec.SchemeVersion,
		Data:          data,
		CreatedAt:     rec.CreatedAt,
		ModifiedAt:    rec.ModifiedAt,
		ModifiedBy:    rec.ModifiedBy,
	}, nil
}

func encodeUpload(u ir.UploadInfo) ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	return b, nil
}

func decodeUpload(id int64, raw []byte) (ir.UploadInfo, error) {
	var u ir.UploadInfo
	if err := json.Unmarshal(raw, &u); err != nil {
		return ir.UploadInfo{}, fmt.Errorf("decode upload %d: %w", id, err)
	}
	u.ID = id
	return u, nil
}

func encodeMigration(m ir.MigrationRecord) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode migration: %w", err)
	}
	return b, nil
}

func decodeMigration(id int64, raw []byte) (ir.MigrationRecord, error) {
	var m ir.MigrationRecord
	if err := json.Unmarshal(raw, &m); err != nil {
		return ir.MigrationRecord{}, fmt.Errorf("decode migration %d: %w", id, err)
	}
	m.ID = id
	return m, nil
}
