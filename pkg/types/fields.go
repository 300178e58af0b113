package types

// FieldKind describes how a semantic field is coerced between its in-memory
// shape and its stored column value.
type FieldKind int

const (
	// FieldJSON marks list- or map-valued fields stored as JSON text.
	FieldJSON FieldKind = iota + 1

	// FieldBool marks boolean fields stored as 0/1 integers.
	FieldBool

	// FieldAsset marks the nested asset object flattened into the
	// asset_file_path and asset_url columns.
	FieldAsset
)

// FieldSpecs maps field names to their storage coercion. Fields absent from
// the map are stored as-is; that is the escape hatch for unknown columns.
type FieldSpecs map[string]FieldKind

// Column names backing a flattened asset object.
const (
	AssetFilePathColumn = "asset_file_path"
	AssetURLColumn      = "asset_url"
)

// DefaultFieldSpecs returns the coercion table for the notebook domain
// schema. Callers with additional tables can extend the returned map.
func DefaultFieldSpecs() FieldSpecs {
	return FieldSpecs{
		"topics":                      FieldJSON,
		"embedding":                   FieldJSON,
		"speakers":                    FieldJSON,
		"youtube_preferred_languages": FieldJSON,
		"archived":                    FieldBool,
		"is_built_in":                 FieldBool,
		"asset":                       FieldAsset,
	}
}
