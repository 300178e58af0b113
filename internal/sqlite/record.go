package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/notedeck/notedeck/pkg/types"
)

// encodeRecord coerces a record's fields into their stored column values,
// driven by the field-spec table: list/map fields to JSON text, booleans to
// 0/1 integers, the nested asset object flattened into its two columns.
// Fields without a spec pass through unchanged.
func encodeRecord(specs types.FieldSpecs, data types.Record) (types.Record, error) {
	prepared := make(types.Record, len(data)+1)
	for key, value := range data {
		switch specs[key] {
		case types.FieldJSON:
			if value == nil {
				prepared[key] = nil
				continue
			}
			if s, ok := value.(string); ok {
				prepared[key] = s
				continue
			}
			b, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("encoding field %s: %w", key, err)
			}
			prepared[key] = string(b)

		case types.FieldBool:
			v, err := encodeBool(value)
			if err != nil {
				return nil, fmt.Errorf("encoding field %s: %w", key, err)
			}
			prepared[key] = v

		case types.FieldAsset:
			if value == nil {
				continue
			}
			asset, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("encoding field %s: expected object, got %T", key, value)
			}
			prepared[types.AssetFilePathColumn] = asset["file_path"]
			prepared[types.AssetURLColumn] = asset["url"]

		default:
			prepared[key] = value
		}
	}
	return prepared, nil
}

func encodeBool(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if b {
			return 1, nil
		}
		return 0, nil
	case int:
		return b, nil
	case int64:
		return b, nil
	default:
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
}

// decodeRecord reverses the storage coercion on one fetched row: JSON text
// fields are parsed back into values, and the asset columns are reassembled
// into a nested object (nil when both are empty). Values that fail to parse
// are kept as stored text rather than dropped.
func decodeRecord(specs types.FieldSpecs, raw map[string]any) types.Record {
	result := make(types.Record, len(raw))
	asset := map[string]any{}
	sawAsset := false

	for key, value := range raw {
		switch key {
		case types.AssetFilePathColumn:
			sawAsset = true
			if s, ok := value.(string); ok && s != "" {
				asset["file_path"] = s
			}
			continue
		case types.AssetURLColumn:
			sawAsset = true
			if s, ok := value.(string); ok && s != "" {
				asset["url"] = s
			}
			continue
		}

		if specs[key] == types.FieldJSON {
			if s, ok := value.(string); ok && s != "" {
				var parsed any
				if err := json.Unmarshal([]byte(s), &parsed); err == nil {
					result[key] = parsed
					continue
				}
			}
		}
		result[key] = value
	}

	if sawAsset {
		if len(asset) == 0 {
			result["asset"] = nil
		} else {
			result["asset"] = asset
		}
	}
	return result
}

// scanRows drains rows into decoded records. TEXT columns arrive from the
// driver as []byte and are normalized to string before decoding.
func scanRows(rows *sql.Rows, specs types.FieldSpecs) ([]types.Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	records := []types.Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		raw := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				raw[col] = string(b)
			} else {
				raw[col] = values[i]
			}
		}
		records = append(records, decodeRecord(specs, raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}

// applyOmit deletes the given field paths from a record. Paths are one or
// two segments deep; the second segment addresses a key inside a nested
// object.
func applyOmit(rec types.Record, paths [][]string) {
	for _, path := range paths {
		switch len(path) {
		case 1:
			delete(rec, path[0])
		case 2:
			if sub, ok := rec[path[0]].(map[string]any); ok {
				delete(sub, path[1])
			}
		}
	}
}
