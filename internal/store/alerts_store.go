package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/i474232898/agromet-sync/internal/alerts"
	"github.com/i474232898/agromet-sync/internal/weather"
)

// RuleRow is a row of alert_rule.
type RuleRow struct {
	ID         int64               `gorm:"primaryKey;autoIncrement"`
	Name       string              `gorm:"size:128;not null"`
	Type       int                 `gorm:"not null"`
	SubType    int                 `gorm:"not null"`
	ParamName  string              `gorm:"size:32;not null"`
	Operator   string              `gorm:"size:4;not null"`
	Threshold  decimal.Decimal     `gorm:"type:decimal(10,2);not null"`
	ParamName2 string              `gorm:"size:32"`
	Operator2  string              `gorm:"size:4"`
	Threshold2 decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Message    string              `gorm:"type:text;not null"`
	Enabled    bool                `gorm:"not null;index"`
	FieldID    int64               `gorm:"not null;index"`
	UserID     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RuleRow) TableName() string { return "alert_rule" }

func (r RuleRow) rule() alerts.Rule {
	return alerts.Rule{
		ID:         r.ID,
		Name:       r.Name,
		Type:       alerts.RuleType(r.Type),
		SubType:    r.SubType,
		Param:      r.ParamName,
		Operator:   r.Operator,
		Threshold:  r.Threshold,
		Param2:     r.ParamName2,
		Operator2:  r.Operator2,
		Threshold2: r.Threshold2,
		Message:    r.Message,
		Enabled:    r.Enabled,
		FieldID:    r.FieldID,
		UserID:     r.UserID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func ruleRow(r alerts.Rule) RuleRow {
	return RuleRow{
		ID:         r.ID,
		Name:       r.Name,
		Type:       int(r.Type),
		SubType:    r.SubType,
		ParamName:  r.Param,
		Operator:   r.Operator,
		Threshold:  r.Threshold,
		ParamName2: r.Param2,
		Operator2:  r.Operator2,
		Threshold2: r.Threshold2,
		Message:    r.Message,
		Enabled:    r.Enabled,
		FieldID:    r.FieldID,
		UserID:     r.UserID,
	}
}

// AlertRow is a row of alert_record. The (rule_id, forecast_dt) index backs
// the application-level duplicate check.
type AlertRow struct {
	ID           int64               `gorm:"primaryKey;autoIncrement"`
	RuleID       int64               `gorm:"not null;uniqueIndex:uk_alert_record_rule_dt,priority:1"`
	ForecastDt   int64               `gorm:"not null;uniqueIndex:uk_alert_record_rule_dt,priority:2"`
	ParamValue   decimal.Decimal     `gorm:"type:decimal(10,2);not null"`
	ParamValue2  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Message      string              `gorm:"type:text;not null"`
	ForecastDate string              `gorm:"size:32"`
	Latitude     decimal.Decimal     `gorm:"type:decimal(10,6)"`
	Longitude    decimal.Decimal     `gorm:"type:decimal(10,6)"`
	CreatedAt    time.Time           `gorm:"index"`
}

func (AlertRow) TableName() string { return "alert_record" }

func (r AlertRow) alert() alerts.Alert {
	return alerts.Alert{
		ID:           r.ID,
		RuleID:       r.RuleID,
		ForecastDt:   r.ForecastDt,
		ParamValue:   r.ParamValue,
		ParamValue2:  r.ParamValue2,
		Message:      r.Message,
		ForecastDate: r.ForecastDate,
		Coord:        weather.Coordinate{Lat: r.Latitude, Lon: r.Longitude},
		CreatedAt:    r.CreatedAt,
	}
}

// AlertStore implements alerts.Repository and alerts.RuleSeeder.
type AlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) EnabledRules(ctx context.Context) ([]alerts.Rule, error) {
	var rows []RuleRow
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rulesOf(rows), nil
}

func (s *AlertStore) Rules(ctx context.Context) ([]alerts.Rule, error) {
	var rows []RuleRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rulesOf(rows), nil
}

func (s *AlertStore) Rule(ctx context.Context, id int64) (alerts.Rule, error) {
	var row RuleRow
	if err := s.db.WithContext(ctx).Take(&row, id).Error; err != nil {
		return alerts.Rule{}, notFound(err)
	}
	return row.rule(), nil
}

// CreateRule stores r and sets its ID.
func (s *AlertStore) CreateRule(ctx context.Context, r *alerts.Rule) error {
	row := ruleRow(*r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	r.ID, r.CreatedAt, r.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *AlertStore) CreateRules(ctx context.Context, rules []alerts.Rule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rules {
			row := ruleRow(r)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *AlertStore) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&RuleRow{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return weather.ErrNotFound
	}
	return nil
}

func (s *AlertStore) CountRules(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&RuleRow{}).Count(&n).Error
	return n, err
}

func (s *AlertStore) AlertExists(ctx context.Context, ruleID, forecastDt int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&AlertRow{}).
		Where("rule_id = ? AND forecast_dt = ?", ruleID, forecastDt).Count(&n).Error
	return n > 0, err
}

func (s *AlertStore) CreateAlert(ctx context.Context, a *alerts.Alert) (bool, error) {
	row := AlertRow{
		RuleID:       a.RuleID,
		ForecastDt:   a.ForecastDt,
		ParamValue:   a.ParamValue.Round(2),
		ParamValue2:  a.ParamValue2,
		Message:      a.Message,
		ForecastDate: a.ForecastDate,
		Latitude:     a.Coord.Lat,
		Longitude:    a.Coord.Lon,
		CreatedAt:    a.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	a.ID = row.ID
	return true, nil
}

// AlertQuery filters the alert listing. Zero values mean no filter.
type AlertQuery struct {
	RuleID int64
	Since  time.Time
	Limit  int
	Offset int
}

// Alerts lists alerts newest first, joined with their rules.
func (s *AlertStore) Alerts(ctx context.Context, q AlertQuery) ([]alerts.AlertView, error) {
	tx := s.db.WithContext(ctx).Model(&AlertRow{})
	if q.RuleID > 0 {
		tx = tx.Where("rule_id = ?", q.RuleID)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var rows []AlertRow
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Offset(q.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []alerts.AlertView{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RuleID)
	}
	var ruleRows []RuleRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&ruleRows).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]RuleRow, len(ruleRows))
	for _, r := range ruleRows {
		byID[r.ID] = r
	}

	out := make([]alerts.AlertView, 0, len(rows))
	for _, r := range rows {
		rule := byID[r.RuleID]
		out = append(out, alerts.AlertView{
			Alert:       r.alert(),
			RuleName:    rule.Name,
			RuleType:    alerts.RuleType(rule.Type),
			RuleSubType: rule.SubType,
		})
	}
	return out, nil
}

func rulesOf(rows []RuleRow) []alerts.Rule {
	out := make([]alerts.Rule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.rule())
	}
	return out
}
