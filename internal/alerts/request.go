package alerts

import "fmt"

// AlertRequest asks the manager to raise one alert.
type AlertRequest struct {
	SchoolID  int64
	DeviceID  *int64
	AlertType string
	Severity  string
	Message   string
}

// Validate checks the fields every alert must carry.
func (r AlertRequest) Validate() error {
	if r.SchoolID <= 0 {
		return fmt.Errorf("school_id must be positive")
	}
	if r.AlertType == "" {
		return fmt.Errorf("alert_type cannot be empty")
	}
	if r.Severity == "" {
		return fmt.Errorf("severity cannot be empty")
	}
	if r.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}
