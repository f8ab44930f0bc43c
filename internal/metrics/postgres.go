package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/adscale/internal/domain"
)

// PostgresProvider resolves metric aggregates from the ad_metrics_daily and
// ad_metrics_hourly tables maintained by the external ingestion job.
//
// The ingestion job upserts the current day's ad_metrics_daily row
// continuously, so every calendar range aggregates daily rows; only the
// rolling *_change_Nh metrics touch the hourly table.
type PostgresProvider struct{ db *sql.DB }

// NewPostgresProvider creates a metrics provider backed by PostgreSQL.
func NewPostgresProvider(db *sql.DB) *PostgresProvider { return &PostgresProvider{db: db} }

// aggregates holds the raw sums a derived metric is computed from.
type aggregates struct {
	Spend       float64
	Revenue     float64
	Results     float64
	Impressions float64
	Clicks      float64
	Reach       float64
}

func (p *PostgresProvider) Snapshot(ctx context.Context, asset *domain.AdAsset, keys []Key) (Snapshot, error) {
	snap := make(Snapshot, len(keys))
	nowLocal := time.Now().In(asset.Location())

	// One daily aggregate per distinct range, shared across that range's keys.
	aggByRange := make(map[domain.TimeRange]*aggregates)

	for _, k := range keys {
		if base, hours, ok := changeMetric(k.Metric); ok {
			v, found, err := p.rollingChange(ctx, asset.ID, base, hours)
			if err != nil {
				return nil, fmt.Errorf("rolling %s: %w", k.Metric, err)
			}
			if found {
				snap[k.String()] = v
			}
			continue
		}

		agg, ok := aggByRange[k.Range]
		if !ok {
			var err error
			agg, err = p.rangeAggregates(ctx, asset.ID, k.Range, nowLocal)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", k.Range, err)
			}
			aggByRange[k.Range] = agg
		}
		if v, found := derive(k.Metric, agg); found {
			snap[k.String()] = v
		}
	}
	return snap, nil
}

func (p *PostgresProvider) BudgetStatus(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	nowLocal := time.Now().In(asset.Location())
	agg, err := p.rangeAggregates(ctx, asset.ID, domain.RangeToday, nowLocal)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	remaining := asset.CurrentBudget - agg.Spend
	if remaining < 0 {
		remaining = 0
	}
	return &domain.BudgetStatus{
		CurrentDaily:   asset.CurrentBudget,
		Spent:          agg.Spend,
		RemainingDaily: remaining,
	}, nil
}

// rangeAggregates sums daily rows over the range, asset-local calendar.
func (p *PostgresProvider) rangeAggregates(ctx context.Context, assetID string, r domain.TimeRange, nowLocal time.Time) (*aggregates, error) {
	today := nowLocal.Format("2006-01-02")

	q := `
		SELECT COALESCE(SUM(spend),0), COALESCE(SUM(revenue),0),
		       COALESCE(SUM(results),0), COALESCE(SUM(impressions),0),
		       COALESCE(SUM(clicks),0), COALESCE(SUM(reach),0)
		FROM ad_metrics_daily
		WHERE ad_assets_id = $1`
	args := []interface{}{assetID}

	switch r {
	case domain.RangeToday:
		q += ` AND metric_date = $2`
		args = append(args, today)
	case domain.RangeYesterday:
		q += ` AND metric_date = $2`
		args = append(args, nowLocal.AddDate(0, 0, -1).Format("2006-01-02"))
	case domain.RangeLifetime:
		// no date bound
	default:
		days, err := rangeDays(r)
		if err != nil {
			return nil, err
		}
		q += ` AND metric_date >= $2 AND metric_date <= $3`
		args = append(args, nowLocal.AddDate(0, 0, -(days-1)).Format("2006-01-02"), today)
	}

	agg := &aggregates{}
	err := p.db.QueryRowContext(ctx, q, args...).Scan(
		&agg.Spend, &agg.Revenue, &agg.Results, &agg.Impressions, &agg.Clicks, &agg.Reach)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func rangeDays(r domain.TimeRange) (int, error) {
	switch r {
	case domain.RangeLast3d:
		return 3, nil
	case domain.RangeLast7d:
		return 7, nil
	case domain.RangeLast14d:
		return 14, nil
	case domain.RangeLast30d:
		return 30, nil
	default:
		return 0, fmt.Errorf("unsupported time range %q", r)
	}
}

// rollingChange computes metric(now-Nh..now) - metric(now-2Nh..now-Nh) from
// hourly buckets. Returns found=false when either window has no basis for
// the derived metric (e.g. zero spend).
func (p *PostgresProvider) rollingChange(ctx context.Context, assetID string, base domain.Metric, hours int) (float64, bool, error) {
	now := time.Now().UTC()
	recent, err := p.windowAggregates(ctx, assetID, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return 0, false, err
	}
	previous, err := p.windowAggregates(ctx, assetID,
		now.Add(-2*time.Duration(hours)*time.Hour), now.Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return 0, false, err
	}

	rv, rok := derive(base, recent)
	pv, pok := derive(base, previous)
	if !rok || !pok {
		return 0, false, nil
	}
	return rv - pv, true, nil
}

func (p *PostgresProvider) windowAggregates(ctx context.Context, assetID string, from, to time.Time) (*aggregates, error) {
	agg := &aggregates{}
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(spend),0), COALESCE(SUM(revenue),0),
		       COALESCE(SUM(results),0), COALESCE(SUM(impressions),0),
		       COALESCE(SUM(clicks),0), COALESCE(SUM(reach),0)
		FROM ad_metrics_hourly
		WHERE ad_assets_id = $1 AND bucket_hour >= $2 AND bucket_hour < $3
	`, assetID, from, to).Scan(
		&agg.Spend, &agg.Revenue, &agg.Results, &agg.Impressions, &agg.Clicks, &agg.Reach)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// changeMetric maps a rolling-delta metric to its base metric and window.
func changeMetric(m domain.Metric) (domain.Metric, int, bool) {
	switch m {
	case domain.MetricROASChange1h:
		return domain.MetricROAS, 1, true
	case domain.MetricROASChange2h:
		return domain.MetricROAS, 2, true
	case domain.MetricROASChange3h:
		return domain.MetricROAS, 3, true
	case domain.MetricProfitChange1h:
		return domain.MetricProfit, 1, true
	case domain.MetricProfitChange2h:
		return domain.MetricProfit, 2, true
	case domain.MetricProfitChange3h:
		return domain.MetricProfit, 3, true
	}
	return "", 0, false
}

// derive computes a metric from raw aggregates. found=false when the metric
// has no defined value (division by zero denominators).
func derive(m domain.Metric, agg *aggregates) (float64, bool) {
	switch m {
	case domain.MetricSpend:
		return agg.Spend, true
	case domain.MetricResults:
		return agg.Results, true
	case domain.MetricImpressions:
		return agg.Impressions, true
	case domain.MetricClicks:
		return agg.Clicks, true
	case domain.MetricProfit:
		return agg.Revenue - agg.Spend, true
	case domain.MetricROAS:
		if agg.Spend == 0 {
			return 0, false
		}
		return agg.Revenue / agg.Spend, true
	case domain.MetricCostPerResult:
		if agg.Results == 0 {
			return 0, false
		}
		return agg.Spend / agg.Results, true
	case domain.MetricFrequency:
		if agg.Reach == 0 {
			return 0, false
		}
		return agg.Impressions / agg.Reach, true
	}
	return 0, false
}
