//go:build jsonv2

package output

import (
	jsonv2 "encoding/json/v2"
)

// encodeRecord returns one NDJSON line, newline included. Nil maps and
// slices are written as null to keep the v1 report shape.
func encodeRecord(recordType string, payload any) ([]byte, error) {
	data, err := jsonv2.Marshal(
		ndjsonRecord{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload},
		jsonv2.FormatNilMapAsNull(true),
		jsonv2.FormatNilSliceAsNull(true),
	)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func encodeValue(value any) ([]byte, error) {
	return jsonv2.Marshal(value, jsonv2.FormatNilMapAsNull(true), jsonv2.FormatNilSliceAsNull(true))
}
