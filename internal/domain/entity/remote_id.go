package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RemoteID is an identifier issued by the pharmacy backend. The backend
// uses integer keys for most resources but strings for a few, so the value
// is kept as text and written back as a JSON number when it is numeric.
type RemoteID string

func (id RemoteID) String() string {
	return string(id)
}

func (id RemoteID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	// only canonical integers go out bare; "007" or "+5" stay strings
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RemoteID(n.String())
	return nil
}
