package organizer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/oan-rionegro/matchup/service/log"
)

var campaignColumns = []string{
	"id_muestra", "codigo_pto", "id_estacion", "fecha_muestra", "observaciones",
	"param", "nombre_clave", "parametro", "grupo", "uni_nombre",
	"valor_original", "limite_deteccion", "limite_cuantificacion", "valor_transformado",
}

// StationCoord locates one monitoring station
type StationCoord struct {
	Source  string  `json:"source"`
	Station string  `json:"station"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func coordKey(source, station string) string {
	return source + "/" + station
}

// LoadStationCoords reads the station coordinates config, keyed by source/station
func LoadStationCoords(path string) (map[string]StationCoord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadStationCoords.ReadFile: %w", err)
	}
	var stations []StationCoord
	if err := json.Unmarshal(b, &stations); err != nil {
		return nil, fmt.Errorf("LoadStationCoords.Unmarshal: %w", err)
	}
	coords := map[string]StationCoord{}
	for _, s := range stations {
		coords[coordKey(s.Source, s.Station)] = s
	}
	return coords, nil
}

var spaces = regexp.MustCompile(`\s+`)

// SetupNames extracts the source and station name from a station export filename
func SetupNames(ctx context.Context, path string) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	if len(parts) < 4 {
		log.Logger(ctx).Warn("unexpected station file name", zap.String("file", filepath.Base(path)))
		return "Unknown", stem
	}
	return parts[1], spaces.ReplaceAllString(parts[3], "_")
}

// Table is a header and its data rows
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex finds a header by name, -1 if missing
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Get returns the value of a column in a row, empty if out of range
func (t *Table) Get(row []string, name string) string {
	i := t.ColumnIndex(name)
	if i == -1 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadTable loads an xlsx (first sheet) or a ','-separated file
func ReadTable(path string) (*Table, error) {
	var records [][]string
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("ReadTable.OpenFile: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("ReadTable: no sheet in %s", path)
		}
		records, err = f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("ReadTable.GetRows: %w", err)
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("ReadTable.Open: %w", err)
		}
		defer f.Close()
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		records, err = reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("ReadTable.ReadAll: %w", err)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadTable: empty file: %s", path)
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// BuildFinalCSV concatenates the station xlsx exports of inputDir, tags each row
// with its station, source and coordinates, and writes the result to outputFile.
// Nothing is done if outputFile already exists.
func BuildFinalCSV(ctx context.Context, inputDir, outputFile string, coords map[string]StationCoord) error {
	if _, err := os.Stat(outputFile); err == nil {
		log.Logger(ctx).Sugar().Infof("output already exists: %s", outputFile)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(inputDir, "Descarga*.xlsx"))
	if err != nil {
		return fmt.Errorf("BuildFinalCSV.Glob: %w", err)
	}
	if len(files) == 0 {
		log.Logger(ctx).Warn("no station export found", zap.String("dir", inputDir))
		return nil
	}

	// Union of the headers, in order of first appearance
	var header []string
	seen := map[string]bool{}
	type taggedTable struct {
		table           *Table
		source, station string
	}
	var tables []taggedTable
	for _, file := range files {
		log.Logger(ctx).Sugar().Infof("reading %s", file)
		table, err := ReadTable(file)
		if err != nil {
			return fmt.Errorf("BuildFinalCSV.%w", err)
		}
		for _, h := range table.Header {
			if !seen[h] {
				seen[h] = true
				header = append(header, h)
			}
		}
		source, station := SetupNames(ctx, file)
		tables = append(tables, taggedTable{table, source, station})
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("BuildFinalCSV.MkdirAll: %w", err)
	}
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("BuildFinalCSV.Create: %w", err)
	}
	defer out.Close()
	writer := csv.NewWriter(out)

	if err := writer.Write(append(append([]string{}, header...), "Station", "Source", "lat", "lon")); err != nil {
		return fmt.Errorf("BuildFinalCSV.Write: %w", err)
	}
	for _, t := range tables {
		lat, lon := "", ""
		if c, ok := coords[coordKey(t.source, t.station)]; ok {
			lat = strconv.FormatFloat(c.Lat, 'f', -1, 64)
			lon = strconv.FormatFloat(c.Lon, 'f', -1, 64)
		}
		for _, row := range t.table.Rows {
			record := make([]string, 0, len(header)+4)
			for _, h := range header {
				record = append(record, t.table.Get(row, h))
			}
			record = append(record, t.station, t.source, lat, lon)
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("BuildFinalCSV.Write: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("BuildFinalCSV.Flush: %w", err)
	}
	log.Logger(ctx).Sugar().Infof("final csv written to %s (%d station files)", outputFile, len(tables))
	return nil
}

// CleanValue normalizes a measurement: the '<' prefix is stripped and the
// decimal comma replaced. The second return is false when the value is not a number.
func CleanValue(val string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(val), "<", ""), ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// organizedValue resolves the reported value: censored measurements (<LD, <LC)
// take the quantification limit.
func organizedValue(valorOriginal, limiteCuantificacion string) string {
	raw := valorOriginal
	switch strings.TrimSpace(valorOriginal) {
	case "<LD", "<LC":
		raw = limiteCuantificacion
	}
	if v, ok := CleanValue(raw); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// OrganizeCampaigns joins the campaign measurements with the station locations
// and writes the organized table to outputPath (';'-separated).
func OrganizeCampaigns(ctx context.Context, stationsPath, campaignsPath, outputPath string) error {
	stations, err := ReadTable(stationsPath)
	if err != nil {
		return fmt.Errorf("OrganizeCampaigns.%w", err)
	}
	campaigns, err := ReadTable(campaignsPath)
	if err != nil {
		return fmt.Errorf("OrganizeCampaigns.%w", err)
	}

	type location struct{ latitud, longitud string }
	locations := map[string]location{}
	for _, row := range stations.Rows {
		key := stations.Get(row, "codigo_pto") + "|" + stations.Get(row, "id_estacion")
		locations[key] = location{stations.Get(row, "latitud"), stations.Get(row, "longitud")}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("OrganizeCampaigns.MkdirAll: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("OrganizeCampaigns.Create: %w", err)
	}
	defer out.Close()
	writer := csv.NewWriter(out)
	writer.Comma = ';'

	header := append(append([]string{}, campaignColumns...), "organized_value", "latitud", "longitud")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("OrganizeCampaigns.Write: %w", err)
	}
	for _, row := range campaigns.Rows {
		record := make([]string, 0, len(header))
		for _, col := range campaignColumns {
			record = append(record, campaigns.Get(row, col))
		}
		record = append(record, organizedValue(campaigns.Get(row, "valor_original"), campaigns.Get(row, "limite_cuantificacion")))

		loc := locations[campaigns.Get(row, "codigo_pto")+"|"+campaigns.Get(row, "id_estacion")]
		record = append(record, loc.latitud, loc.longitud)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("OrganizeCampaigns.Write: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("OrganizeCampaigns.Flush: %w", err)
	}
	log.Logger(ctx).Sugar().Infof("organized campaigns written to %s (%d rows)", outputPath, len(campaigns.Rows))
	return nil
}
