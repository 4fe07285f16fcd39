package toml

import (
	"context"

	"github.com/spf13/viper"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// StrategyRepository stores the account strategy profile in strategy.toml.
type StrategyRepository struct {
	doc document
}

var _ ports.StrategyRepository = (*StrategyRepository)(nil)

func NewStrategyRepository(cfg *viper.Viper) (*StrategyRepository, error) {
	doc, err := openDocument(cfg, StrategyPathKey, strategyFileName, "strategy")
	if err != nil {
		return nil, err
	}

	return &StrategyRepository{doc: doc}, nil
}

func (r *StrategyRepository) Path() string {
	return r.doc.Path()
}

func (r *StrategyRepository) Load(ctx context.Context) (domain.StrategyProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StrategyProfile{}, err
	}

	r.doc.mu.RLock()
	defer r.doc.mu.RUnlock()

	var file strategySchema
	found, err := r.doc.read(&file)
	if err != nil {
		return domain.StrategyProfile{}, err
	}
	if !found {
		return domain.StrategyProfile{}, nil
	}
	if err := validateVersion(r.doc.name, file.Version); err != nil {
		return domain.StrategyProfile{}, err
	}

	return fromStrategySchema(file), nil
}

func (r *StrategyRepository) Save(ctx context.Context, profile domain.StrategyProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	return r.doc.write(toStrategySchema(profile))
}

func toStrategySchema(profile domain.StrategyProfile) strategySchema {
	file := strategySchema{
		Version:           defaultVersion(0),
		Persona:           profile.Persona,
		Audience:          profile.Audience,
		ContentDirections: profile.ContentDirections,
		BestPublishTimes:  profile.BestPublishTimes,
		RedLines:          profile.RedLines,
		CreatedAt:         formatTime(profile.CreatedAt),
		UpdatedAt:         formatTime(profile.UpdatedAt),
	}

	if len(profile.DailyLimits) > 0 {
		file.Limits = make(map[string]int, len(profile.DailyLimits))
		for action, limit := range profile.DailyLimits {
			file.Limits[string(action)] = limit
		}
	}

	for _, entry := range profile.ContentCalendar {
		file.Calendar = append(file.Calendar, calendarSchema{
			Date:      entry.Date,
			Topic:     entry.Topic,
			NoteType:  string(entry.NoteType),
			Note:      entry.Note,
			Status:    entry.Status,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}

	return file
}

func fromStrategySchema(file strategySchema) domain.StrategyProfile {
	profile := domain.StrategyProfile{
		Persona:           file.Persona,
		Audience:          file.Audience,
		ContentDirections: file.ContentDirections,
		BestPublishTimes:  file.BestPublishTimes,
		RedLines:          file.RedLines,
		CreatedAt:         parseTime(file.CreatedAt),
		UpdatedAt:         parseTime(file.UpdatedAt),
	}

	if len(file.Limits) > 0 {
		profile.DailyLimits = make(map[domain.ActionType]int, len(file.Limits))
		for action, limit := range file.Limits {
			profile.DailyLimits[domain.ActionType(action)] = limit
		}
	}

	for _, entry := range file.Calendar {
		profile.ContentCalendar = append(profile.ContentCalendar, domain.CalendarEntry{
			Date:      entry.Date,
			Topic:     entry.Topic,
			NoteType:  domain.NoteType(entry.NoteType),
			Note:      entry.Note,
			Status:    entry.Status,
			CreatedAt: parseTime(entry.CreatedAt),
		})
	}

	return profile
}
