package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/oan-rionegro/matchup/catalog/entities"
	"github.com/oan-rionegro/matchup/service"
)

// ErrSchema is returned when a required column is missing from an input file
type ErrSchema struct {
	Column string
}

func (e ErrSchema) Error() string {
	return fmt.Sprintf("missing required column: %s", e.Column)
}

// columnIndex finds a header by name, ignoring case and surrounding spaces
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func parseCoordinate(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
}

// ReadObservations loads field observations from a ';'-separated file with
// date, longitud and latitud columns.
func ReadObservations(path string) ([]entities.FieldObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadObservations.Open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadObservations.ReadAll: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadObservations: empty file: %s", path)
	}

	header := records[0]
	iDate := columnIndex(header, "date")
	iLon := columnIndex(header, "longitud")
	iLat := columnIndex(header, "latitud")
	for col, i := range map[string]int{"date": iDate, "longitud": iLon, "latitud": iLat} {
		if i == -1 {
			return nil, fmt.Errorf("ReadObservations: %w", ErrSchema{Column: col})
		}
	}

	var observations []entities.FieldObservation
	for line, record := range records[1:] {
		date, err := dateparse.ParseAny(strings.TrimSpace(record[iDate]))
		if err != nil {
			return nil, fmt.Errorf("ReadObservations[line %d].ParseAny: %w", line+2, err)
		}
		lon, err := parseCoordinate(record[iLon])
		if err != nil {
			return nil, fmt.Errorf("ReadObservations[line %d].longitud: %w", line+2, err)
		}
		lat, err := parseCoordinate(record[iLat])
		if err != nil {
			return nil, fmt.Errorf("ReadObservations[line %d].latitud: %w", line+2, err)
		}
		observations = append(observations, entities.FieldObservation{Date: date, Longitude: lon, Latitude: lat})
	}
	return observations, nil
}

// ReadDates loads field dates from a ','-separated file with a date column
func ReadDates(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadDates.Open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadDates.ReadAll: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadDates: empty file: %s", path)
	}

	iDate := columnIndex(records[0], "date")
	if iDate == -1 {
		return nil, fmt.Errorf("ReadDates: %w", ErrSchema{Column: "date"})
	}

	var dates []time.Time
	for line, record := range records[1:] {
		date, err := dateparse.ParseAny(strings.TrimSpace(record[iDate]))
		if err != nil {
			return nil, fmt.Errorf("ReadDates[line %d].ParseAny: %w", line+2, err)
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// DedupObservations removes duplicated observations, preserving order
func DedupObservations(observations []entities.FieldObservation) []entities.FieldObservation {
	seen := service.StringSet{}
	var deduped []entities.FieldObservation
	for _, o := range observations {
		if seen.Exists(o.Key()) {
			continue
		}
		seen.Push(o.Key())
		deduped = append(deduped, o)
	}
	return deduped
}

// DedupDates removes duplicated calendar dates, preserving order
func DedupDates(dates []time.Time) []time.Time {
	seen := service.StringSet{}
	var deduped []time.Time
	for _, d := range dates {
		key := d.Format("2006-01-02")
		if seen.Exists(key) {
			continue
		}
		seen.Push(key)
		deduped = append(deduped, d)
	}
	return deduped
}
