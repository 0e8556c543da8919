package climate

import (
	"math"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
)

const solarConstant = 0.0820 // MJ m^-2 min^-1

// HargreavesPET estimates potential evapotranspiration in mm per period from
// temperature series (°C) at the given latitude. The output follows tmean's
// dates; a period is missing when any temperature is missing or tmax < tmin.
func HargreavesPET(lat float64, tmean, tmin, tmax domain.Series) (domain.Series, error) {
	if err := samePeriod(tmean, tmin, tmax); err != nil {
		return domain.Series{}, err
	}
	out := make([]domain.Value, tmean.Len())
	for i := range out {
		date := tmean.Date(i)
		tm := tmean.At(i)
		tn, tx := valueOn(tmin, date), valueOn(tmax, date)
		if !tm.Valid || !tn.Valid || !tx.Valid || tx.V < tn.V {
			continue
		}
		doy := date.YearDay()
		if tmean.Period() == domain.PeriodMonthly {
			doy = date.AddDate(0, 0, 14).YearDay()
		}
		ra := 0.408 * extraterrestrialRadiation(lat, doy)
		daily := math.Max(0, 0.0023*(tm.V+17.8)*math.Sqrt(tx.V-tn.V)*ra)
		out[i] = domain.Some(daily * float64(tmean.Period().Days(date)))
	}
	return domain.NewSeries("pet", tmean.Period(), tmean.Start(), out)
}

// extraterrestrialRadiation returns daily Ra in MJ m^-2 day^-1 (FAO-56 eq. 21).
func extraterrestrialRadiation(latDeg float64, doy int) float64 {
	phi := latDeg * math.Pi / 180
	angle := 2 * math.Pi * float64(doy) / 365
	dr := 1 + 0.033*math.Cos(angle)
	decl := 0.409 * math.Sin(angle-1.39)
	ws := math.Acos(math.Max(-1, math.Min(1, -math.Tan(phi)*math.Tan(decl))))
	return 24 * 60 / math.Pi * solarConstant * dr *
		(ws*math.Sin(phi)*math.Sin(decl) + math.Cos(phi)*math.Cos(decl)*math.Sin(ws))
}

// WaterBalance returns precip - pet on precip's dates.
func WaterBalance(precip, pet domain.Series) (domain.Series, error) {
	if err := samePeriod(precip, pet); err != nil {
		return domain.Series{}, err
	}
	out := make([]domain.Value, precip.Len())
	for i := range out {
		p, e := precip.At(i), valueOn(pet, precip.Date(i))
		if p.Valid && e.Valid {
			out[i] = domain.Some(p.V - e.V)
		}
	}
	return domain.NewSeries("balance", precip.Period(), precip.Start(), out)
}

func samePeriod(series ...domain.Series) error {
	for _, s := range series[1:] {
		if s.Period() != series[0].Period() {
			return domain.ConfigErrorf("period", "%s is %s but %s is %s",
				s.Metric(), s.Period(), series[0].Metric(), series[0].Period())
		}
	}
	return nil
}

func valueOn(s domain.Series, date time.Time) domain.Value {
	i, ok := s.IndexOf(date)
	if !ok {
		return domain.Missing()
	}
	return s.At(i)
}
