package domain

// Reading is one device measurement posted to the ingest endpoint.
type Reading struct {
	DeviceID string   `json:"device_id" validate:"required"`
	Value    *float64 `json:"value" validate:"required"`
	Time     *int64   `json:"time" validate:"required"`
}

// Verdict is the outcome of evaluating a Reading.
type Verdict struct {
	DeviceID string  `json:"device_id"`
	Value    float64 `json:"value"`
	Anomaly  bool    `json:"anomaly"`
	Detector string  `json:"detector"`
}
