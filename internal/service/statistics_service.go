package service

import (
	"context"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/repository"
)

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetStatistics aggregates onboarding figures. Status breakdowns cover all
// active riders; only RidersCreatedInRange honours the time bracket.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error) {
	var response model.StatisticsResponse
	if endDate.Before(startDate) {
		return response, invalid("endDate", "must not be before startDate")
	}
	response.TimeRangeStartDate = startDate.Format(timeLayout)
	response.TimeRangeEndDate = endDate.Format(timeLayout)

	var err error
	if response.TotalRiders, err = s.repo.CountRiders(ctx, false); err != nil {
		return response, err
	}
	if response.ActiveRiders, err = s.repo.CountRiders(ctx, true); err != nil {
		return response, err
	}
	if response.RidersCreatedInRange, err = s.repo.CountRidersCreatedBetween(ctx, startDate, endDate); err != nil {
		return response, err
	}
	if response.ByOnboardingStatus, err = s.repo.GroupRidersBy(ctx, "onboarding_status"); err != nil {
		return response, err
	}
	if response.ByEmploymentStatus, err = s.repo.GroupRidersBy(ctx, "employment_status"); err != nil {
		return response, err
	}
	if response.DocumentsByStatus, err = s.repo.GroupDocumentsByStatus(ctx); err != nil {
		return response, err
	}
	if response.AcknowledgementsByStatus, err = s.repo.GroupAcknowledgementsByStatus(ctx); err != nil {
		return response, err
	}

	// keep the JSON shape stable for empty databases
	for _, list := range []*[]model.StatusCount{
		&response.ByOnboardingStatus,
		&response.ByEmploymentStatus,
		&response.DocumentsByStatus,
		&response.AcknowledgementsByStatus,
	} {
		if *list == nil {
			*list = []model.StatusCount{}
		}
	}

	return response, nil
}
