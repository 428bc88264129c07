package model

import "encoding/json"

// RawCalendarConfig is the doctor calendar configuration as stored upstream.
// The horarios payload nests per-appointment-type schedule fragments two map
// levels deep and is heterogeneous in practice, so the inner levels stay as
// raw JSON and are decoded leniently by the schedule normalizer.
type RawCalendarConfig struct {
	Horarios                  map[string]json.RawMessage `json:"horarios"`
	ConfigureByType           bool                       `json:"configureByType"`
	Overschedule              bool                       `json:"overschedule"`
	MaxConcurrentAppointments *int                       `json:"maxConcurrentAppointments"`
	Timezone                  string                     `json:"timezone"`
}
