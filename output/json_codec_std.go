//go:build !jsonv2

package output

import "encoding/json"

// encodeRecord returns one NDJSON line, newline included.
func encodeRecord(recordType string, payload any) ([]byte, error) {
	data, err := json.Marshal(ndjsonRecord{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func encodeValue(value any) ([]byte, error) {
	return json.Marshal(value)
}
