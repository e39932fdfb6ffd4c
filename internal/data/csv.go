package data

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"backtester/types"
)

var expectedHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// parseDayFile reads and validates one per-day CSV file. A missing file
// is tolerated as "no data"; an existing-but-empty file (header only, or
// fully empty) yields a nil slice and no error. Structural/parse/encoding
// failures are reported as distinct DataError kinds carrying the path.
func parseDayFile(path string) ([]types.OhlcvBar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewDataError(types.DataErrorFileSystem, path, "cannot open file", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // validated explicitly below, for a distinct Structure error

	header, err := r.Read()
	if err == io.EOF {
		// Empty file: valid, contributes no rows.
		return nil, nil
	}
	if err != nil {
		return nil, types.NewDataError(types.DataErrorFileSystem, path, "cannot read header", err)
	}
	for _, f := range header {
		if !utf8.ValidString(f) {
			return nil, types.NewDataError(types.DataErrorEncoding, path, "header is not valid UTF-8", nil)
		}
	}
	if !headerMatches(header) {
		return nil, types.NewDataError(types.DataErrorStructure, path, "header does not match timestamp,open,high,low,close,volume", nil)
	}

	var bars []types.OhlcvBar
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.NewDataError(types.DataErrorFileSystem, path, "error reading row", err)
		}
		for _, f := range record {
			if !utf8.ValidString(f) {
				return nil, types.NewDataError(types.DataErrorEncoding, path, "row is not valid UTF-8", nil)
			}
		}
		bar, err := parseRow(record)
		if err != nil {
			return nil, types.NewDataError(types.DataErrorParse, path, err.Error(), err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func headerMatches(fields []string) bool {
	if len(fields) != len(expectedHeader) {
		return false
	}
	for i, f := range expectedHeader {
		if strings.TrimSpace(fields[i]) != f {
			return false
		}
	}
	return true
}

func parseRow(fields []string) (types.OhlcvBar, error) {
	if len(fields) != 6 {
		return types.OhlcvBar{}, errBadRow("expected 6 fields, got " + strconv.Itoa(len(fields)))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad timestamp: " + err.Error())
	}
	open, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad open: " + err.Error())
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad high: " + err.Error())
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad low: " + err.Error())
	}
	closeP, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad close: " + err.Error())
	}
	volume, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
	if err != nil {
		return types.OhlcvBar{}, errBadRow("bad volume: " + err.Error())
	}

	bar := types.OhlcvBar{Timestamp: ts, Open: open, High: high, Low: low, Close: closeP, Volume: volume}
	if err := bar.Validate(); err != nil {
		return types.OhlcvBar{}, err
	}
	return bar, nil
}

type rowError string

func (e rowError) Error() string { return string(e) }

func errBadRow(msg string) error { return rowError(msg) }
