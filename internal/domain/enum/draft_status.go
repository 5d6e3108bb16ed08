package enum

import (
	"database/sql/driver"
	"encoding/json"
)

// DraftStatus represents the lifecycle state of a return draft
type DraftStatus int

const (
	DraftStatusOpen       DraftStatus = 0
	DraftStatusSubmitting DraftStatus = 1
)

func (s DraftStatus) String() string {
	return [...]string{"Open", "Submitting"}[s]
}

func (s DraftStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *DraftStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*s = DraftStatus(i)
		return nil
	}
	switch str {
	case "Open":
		*s = DraftStatusOpen
	case "Submitting":
		*s = DraftStatusSubmitting
	}
	return nil
}

func (s DraftStatus) Value() (driver.Value, error) {
	return int64(s), nil
}

func (s *DraftStatus) Scan(value interface{}) error {
	if value == nil {
		*s = DraftStatusOpen
		return nil
	}
	switch v := value.(type) {
	case int64:
		*s = DraftStatus(v)
	case int:
		*s = DraftStatus(v)
	}
	return nil
}
