package service

import (
	"time"
)

// Publisher fans domain events out to realtime subscribers. Publishing never blocks.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// event payloads carry ids and statuses only, never personal data
type riderEvent struct {
	RiderID          string `json:"riderId"`
	RiderCode        string `json:"riderCode"`
	OnboardingStatus string `json:"onboardingStatus,omitempty"`
}

type bulkEvent struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type statusEvent struct {
	ID      string `json:"id"`
	RiderID string `json:"riderId"`
	Status  string `json:"status"`
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(IsoDate)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(IsoDate)
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
