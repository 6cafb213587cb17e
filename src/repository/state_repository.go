package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"spotexecutor/src/database"
	"spotexecutor/src/model"
)

var openStates = []model.PositionState{
	model.PositionStatePlanned,
	model.PositionStatePendingEntry,
	model.PositionStateProtected,
}

// StateRepository is the durable store for positions, grid cycles, the
// transition log and the trade audit trail. Every multi-row write runs in a
// single transaction.
type StateRepository struct {
	db *gorm.DB
}

// NewStateRepository creates a new repository instance using the main read/write database.
func NewStateRepository() *StateRepository {
	logger.WithField("component", "StateRepository").
		Info("Creating new StateRepository with MainDB")

	return &StateRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *StateRepository) WithDB(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// ---------------------------------------------------
// Position writes
// ---------------------------------------------------

// CreatePosition inserts a planned position and its first log entry.
func (r *StateRepository) CreatePosition(
	ctx context.Context,
	p *model.Position,
	reason string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "StateRepository",
		"op":          "CreatePosition",
		"symbol":      p.Symbol,
		"origin":      p.Origin,
		"position_id": p.ID,
	}).Debug("Creating position")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return tx.Create(newLog(p, "", reason)).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StateRepository",
			"op":   "CreatePosition",
		}).WithError(err).Error("Failed to create position")
		return err
	}
	return nil
}

// CreateFromAlert inserts a planned position and deactivates the alert that
// fired it in the same transaction.
func (r *StateRepository) CreateFromAlert(
	ctx context.Context,
	p *model.Position,
	alertID uint,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "StateRepository",
		"op":          "CreateFromAlert",
		"symbol":      p.Symbol,
		"alert_id":    alertID,
		"position_id": p.ID,
	}).Debug("Creating position from alert")

	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Alert{}).
			Where("id = ? AND active = ?", alertID, true).
			Updates(map[string]interface{}{"active": false, "fired_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlertInactive
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return tx.Create(newLog(p, "", "alert fired")).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "StateRepository",
			"op":       "CreateFromAlert",
			"alert_id": alertID,
		}).WithError(err).Error("Failed to create position from alert")
		return err
	}
	return nil
}

// CreateGridCycle inserts a cycle and all of its legs atomically.
func (r *StateRepository) CreateGridCycle(
	ctx context.Context,
	cycle *model.GridCycle,
	legs []*model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "StateRepository",
		"op":       "CreateGridCycle",
		"symbol":   cycle.Symbol,
		"cycle_id": cycle.ID,
		"legs":     len(legs),
	}).Debug("Creating grid cycle")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cycle).Error; err != nil {
			return err
		}
		for _, leg := range legs {
			if err := tx.Create(leg).Error; err != nil {
				return err
			}
			if err := tx.Create(newLog(leg, "", "grid leg planned")).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "StateRepository",
			"op":       "CreateGridCycle",
			"cycle_id": cycle.ID,
		}).WithError(err).Error("Failed to create grid cycle")
		return err
	}
	return nil
}

// SavePosition flushes a non-terminal mutation of a position stored in state
// from. When the state changed, a transition log row is written in the same
// transaction.
func (r *StateRepository) SavePosition(
	ctx context.Context,
	p *model.Position,
	from model.PositionState,
	reason string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "StateRepository",
		"op":          "SavePosition",
		"position_id": p.ID,
		"from":        from,
		"to":          p.State,
	}).Debug("Saving position")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateFrom(tx, p, from); err != nil {
			return err
		}
		if from != p.State || reason != "" {
			return tx.Create(newLog(p, from, reason)).Error
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "StateRepository",
			"op":          "SavePosition",
			"position_id": p.ID,
		}).WithError(err).Error("Failed to save position")
		return err
	}
	return nil
}

// Finalize writes a terminal transition. For CLOSED positions the trade is
// appended in the same transaction. When the position is the last open leg
// of a grid cycle, the cycle is marked complete and returned; this happens
// exactly once per cycle.
func (r *StateRepository) Finalize(
	ctx context.Context,
	p *model.Position,
	from model.PositionState,
	trade *model.Trade,
	reason string,
) (*model.GridCycle, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "StateRepository",
		"op":          "Finalize",
		"position_id": p.ID,
		"state":       p.State,
	}).Debug("Finalizing position")

	if !p.State.Terminal() {
		return nil, ErrNotTerminal
	}

	var completed *model.GridCycle
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateFrom(tx, p, from); err != nil {
			return err
		}
		if trade != nil {
			if err := tx.Create(trade).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(newLog(p, from, reason)).Error; err != nil {
			return err
		}
		if p.GridCycleID == "" {
			return nil
		}

		var open int64
		if err := tx.Model(&model.Position{}).
			Where("grid_cycle_id = ? AND state IN ?", p.GridCycleID, openStates).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&model.GridCycle{}).
			Where("id = ? AND completed_at IS NULL", p.GridCycleID).
			Update("completed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			var cycle model.GridCycle
			if err := tx.First(&cycle, "id = ?", p.GridCycleID).Error; err != nil {
				return err
			}
			completed = &cycle
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "StateRepository",
			"op":          "Finalize",
			"position_id": p.ID,
		}).WithError(err).Error("Failed to finalize position")
		return nil, err
	}

	if completed != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "StateRepository",
			"op":       "Finalize",
			"cycle_id": completed.ID,
		}).Info("Grid cycle completed")
	}
	return completed, nil
}

// ---------------------------------------------------
// Position reads
// ---------------------------------------------------

// FindPosition returns (nil, nil) if the position is not found.
func (r *StateRepository) FindPosition(
	ctx context.Context,
	id string,
) (*model.Position, error) {

	var p model.Position
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":        "StateRepository",
			"op":          "FindPosition",
			"position_id": id,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &p, nil
}

// FindOpen returns every non-terminal position, oldest first.
func (r *StateRepository) FindOpen(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("state IN ?", openStates).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StateRepository",
			"op":   "FindOpen",
		}).WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}
	return out, nil
}

// FindOpenBySymbol returns the non-terminal positions of one symbol, oldest first.
func (r *StateRepository) FindOpenBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND state IN ?", symbol, openStates).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "StateRepository",
			"op":     "FindOpenBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}
	return out, nil
}

// OpenSymbols lists the distinct symbols that still have open positions.
func (r *StateRepository) OpenSymbols(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("state IN ?", openStates).
		Distinct().
		Order("symbol").
		Pluck("symbol", &out).Error
	return out, err
}

// FindLogs returns the transition log of a position in write order.
func (r *StateRepository) FindLogs(ctx context.Context, positionID string) ([]model.PositionLog, error) {
	var out []model.PositionLog
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// FindGridCycle returns (nil, nil) if the cycle is not found.
func (r *StateRepository) FindGridCycle(ctx context.Context, id string) (*model.GridCycle, error) {
	var c model.GridCycle
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// updateFrom writes every column of p only while the stored row is still in
// state from.
func updateFrom(tx *gorm.DB, p *model.Position, from model.PositionState) error {
	res := tx.Model(p).Where("state = ?", from).Select("*").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is not %s", ErrStaleState, p.ID, from)
	}
	return nil
}

func newLog(p *model.Position, from model.PositionState, reason string) *model.PositionLog {
	orderID := p.EntryOrderID
	if p.ProtectOrderID != "" {
		orderID = p.ProtectOrderID
	}
	return &model.PositionLog{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		FromState:  from,
		ToState:    p.State,
		OrderID:    orderID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}
