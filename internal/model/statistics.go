package model

// StatusCount is one bucket of a GROUP BY status query.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// StatisticsResponse aggregates onboarding figures for the dashboard
type StatisticsResponse struct {
	TotalRiders              int64         `json:"totalRiders"`
	ActiveRiders             int64         `json:"activeRiders"`
	RidersCreatedInRange     int64         `json:"ridersCreatedInRange"`
	ByOnboardingStatus       []StatusCount `json:"byOnboardingStatus"`
	ByEmploymentStatus       []StatusCount `json:"byEmploymentStatus"`
	DocumentsByStatus        []StatusCount `json:"documentsByStatus"`
	AcknowledgementsByStatus []StatusCount `json:"acknowledgementsByStatus"`
	TimeRangeStartDate       string        `json:"timeRangeStartDate"`
	TimeRangeEndDate         string        `json:"timeRangeEndDate"`
}
