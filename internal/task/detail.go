package task

import "encoding/json"

// Detail is a task definition merged with its runtime state.
type Detail struct {
	Task
	Status        TaskStatus `json:"status"`
	RetryCount    int        `json:"retry_count"`
	SkippedDueTo  string     `json:"skipped_due_to,omitempty"`
	SkipRootCause string     `json:"skip_root_cause,omitempty"`
}

func (d *Detail) ToJSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func DetailFromJSON(data string) (*Detail, error) {
	var d Detail
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, err
	}

	return &d, nil
}
