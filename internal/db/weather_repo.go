package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"agriweather/internal/types"
)

// WeatherRepository caches external API forecasts per farm and day in the
// weather_forecasts table. It implements forecasts.ForecastCache.
type WeatherRepository struct {
	db DBTX
}

// NewWeatherRepository creates a WeatherRepository backed by the given
// connection.
func NewWeatherRepository(db DBTX) *WeatherRepository {
	return &WeatherRepository{db: db}
}

// Get returns the forecast stored for the farm and day, or (nil, nil) when
// there is none.
func (r *WeatherRepository) Get(ctx context.Context, farmID, day string) (*types.APIForecast, error) {
	var payload []byte
	err := r.db.QueryRow(ctx,
		`SELECT payload FROM weather_forecasts WHERE farm_id = $1 AND day = $2::date`,
		farmID, day,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read cached forecast", err)
	}

	var f types.APIForecast
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "cached forecast is corrupt", err)
	}
	return &f, nil
}

// Put stores the forecast for the farm and day, replacing any earlier entry.
func (r *WeatherRepository) Put(ctx context.Context, farmID, day string, f *types.APIForecast) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode forecast", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO weather_forecasts (farm_id, day, payload, fetched_at)
		VALUES ($1, $2::date, $3, COALESCE($4, NOW()))
		ON CONFLICT (farm_id, day) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
		farmID, day, payload, nilIfZeroTime(f.FetchedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store forecast", err)
	}
	return nil
}

// PurgeBefore deletes forecasts for days earlier than day and returns how
// many were removed.
func (r *WeatherRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM weather_forecasts WHERE day < $1::date`,
		day,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge cached forecasts", err)
	}
	return tag.RowsAffected(), nil
}
