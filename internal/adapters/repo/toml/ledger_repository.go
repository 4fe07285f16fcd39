package toml

import (
	"context"
	"sort"

	"github.com/spf13/viper"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

// LedgerRepository stores quota windows and the action log in ledger.toml.
type LedgerRepository struct {
	doc document
}

var _ ports.LedgerRepository = (*LedgerRepository)(nil)

func NewLedgerRepository(cfg *viper.Viper) (*LedgerRepository, error) {
	doc, err := openDocument(cfg, LedgerPathKey, ledgerFileName, "ledger")
	if err != nil {
		return nil, err
	}

	return &LedgerRepository{doc: doc}, nil
}

func (r *LedgerRepository) Path() string {
	return r.doc.Path()
}

func (r *LedgerRepository) Load(ctx context.Context) (domain.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerState{}, err
	}

	r.doc.mu.RLock()
	defer r.doc.mu.RUnlock()

	var file ledgerSchema
	if _, err := r.doc.read(&file); err != nil {
		return domain.LedgerState{}, err
	}
	if err := validateVersion(r.doc.name, file.Version); err != nil {
		return domain.LedgerState{}, err
	}

	return fromLedgerSchema(file), nil
}

func (r *LedgerRepository) Save(ctx context.Context, state domain.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	return r.doc.write(toLedgerSchema(state))
}

func toLedgerSchema(state domain.LedgerState) ledgerSchema {
	file := ledgerSchema{Version: defaultVersion(0)}

	for _, window := range state.Windows {
		file.Windows = append(file.Windows, windowSchema{
			Action:      string(window.Action),
			WindowStart: formatTime(window.WindowStart),
			Count:       window.Count,
		})
	}
	sort.Slice(file.Windows, func(i, j int) bool {
		return file.Windows[i].Action < file.Windows[j].Action
	})

	for _, record := range state.Records {
		file.Records = append(file.Records, recordSchema{
			Action:    string(record.Action),
			Timestamp: formatTime(record.Timestamp),
			Outcome:   string(record.Outcome),
			Detail:    record.Detail,
		})
	}

	return file
}

func fromLedgerSchema(file ledgerSchema) domain.LedgerState {
	state := domain.LedgerState{Windows: make(map[domain.ActionType]domain.QuotaWindow, len(file.Windows))}

	for _, entry := range file.Windows {
		action := domain.ActionType(entry.Action)
		if !action.Valid() {
			continue
		}
		state.Windows[action] = domain.QuotaWindow{
			Action:      action,
			WindowStart: parseTime(entry.WindowStart),
			Count:       entry.Count,
		}
	}

	for _, entry := range file.Records {
		state.Records = append(state.Records, domain.ActionRecord{
			Action:    domain.ActionType(entry.Action),
			Timestamp: parseTime(entry.Timestamp),
			Outcome:   domain.ActionOutcome(entry.Outcome),
			Detail:    entry.Detail,
		})
	}

	return state
}
