package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func obs(id, metric string, date time.Time, v float64) Observation {
	return Observation{Location: Location{ID: id}, Date: date, Metric: metric, Value: Some(v)}
}

func TestSeriesFromObservations_GapsAreMissing(t *testing.T) {
	s, err := SeriesFromObservations(PeriodMonthly, []Observation{
		obs("a", "precip", month(2020, time.April), 4),
		obs("a", "precip", month(2020, time.January), 1),
		obs("a", "precip", time.Date(2020, time.February, 17, 6, 0, 0, 0, time.UTC), 2),
	})
	require.NoError(t, err)

	require.Equal(t, 4, s.Len())
	assert.Equal(t, month(2020, time.January), s.Start())
	assert.Equal(t, Some(1), s.At(0))
	assert.Equal(t, Some(2), s.At(1))
	assert.False(t, s.At(2).Valid)
	assert.Equal(t, Some(4), s.At(3))
	assert.Equal(t, 3, s.ValidCount())
	assert.Equal(t, month(2020, time.March), s.Date(2))
}

func TestSeriesFromObservations_Rejects(t *testing.T) {
	_, err := SeriesFromObservations(PeriodDaily, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	d := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err = SeriesFromObservations(PeriodDaily, []Observation{
		obs("a", "precip", d, 1), obs("a", "precip", d.Add(3*time.Hour), 2),
	})
	assert.ErrorIs(t, err, ErrConfiguration, "duplicate date")

	_, err = SeriesFromObservations(PeriodDaily, []Observation{
		obs("a", "precip", d, 1), obs("b", "precip", d.AddDate(0, 0, 1), 2),
	})
	assert.ErrorIs(t, err, ErrConfiguration, "mixed locations")
}

func TestSeries_IndexOf(t *testing.T) {
	s, err := NewSeries("precip", PeriodMonthly, month(2019, time.November), make([]Value, 5))
	require.NoError(t, err)

	i, ok := s.IndexOf(time.Date(2020, time.February, 20, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, 3, i)

	_, ok = s.IndexOf(month(2019, time.October))
	assert.False(t, ok)
	_, ok = s.IndexOf(month(2020, time.April))
	assert.False(t, ok)
}

func TestSeries_Fill(t *testing.T) {
	s, err := NewSeries("precip", PeriodDaily, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		[]Value{Missing(), Some(2), Missing(), Missing(), Some(8), Missing()})
	require.NoError(t, err)

	linear := s.Fill(FillLinear)
	assert.False(t, linear.At(0).Valid)
	assert.InDelta(t, 4.0, linear.At(2).V, 1e-12)
	assert.InDelta(t, 6.0, linear.At(3).V, 1e-12)
	assert.False(t, linear.At(5).Valid)

	forward := s.Fill(FillForward)
	assert.False(t, forward.At(0).Valid)
	assert.Equal(t, Some(2), forward.At(3))
	assert.Equal(t, Some(8), forward.At(5))

	assert.False(t, s.At(2).Valid, "original series is unchanged")
}

func TestSeries_JSON(t *testing.T) {
	var s Series
	require.NoError(t, json.Unmarshal([]byte(
		`{"metric":"precip","period":"monthly","start":"2020-01-01","values":[1.5,null,0]}`), &s))

	assert.Equal(t, "precip", s.Metric())
	assert.Equal(t, PeriodMonthly, s.Period())
	assert.Equal(t, Some(1.5), s.At(0))
	assert.False(t, s.At(1).Valid)
	assert.Equal(t, Some(0), s.At(2), "zero is a measurement, not a gap")
}

func TestPeriod_Days(t *testing.T) {
	assert.Equal(t, 29, PeriodMonthly.Days(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 31, PeriodMonthly.Days(month(2024, time.December)))
	assert.Equal(t, 1, PeriodDaily.Days(month(2024, time.December)))
}

func TestLocation_Validate(t *testing.T) {
	assert.NoError(t, Location{ID: "a", Lon: -97.7, Lat: 30.2}.Validate())
	assert.ErrorIs(t, Location{Lon: 0, Lat: 0}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Location{ID: "a", Lon: 181, Lat: 0}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Location{ID: "a", Lon: 0, Lat: -91}.Validate(), ErrConfiguration)
}
