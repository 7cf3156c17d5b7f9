// Package areas parses and validates the CSV record that describes where
// source images go on a template.
package areas

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// Header is the only accepted first line of an area record
const Header = "Area,Source,TLx,TLy,TRx,TRy,BRx,BRy,BLx,BLy,Background"

const fieldCount = 11

var (
	ErrEmpty            = errors.New("area record is empty")
	ErrHeaderMismatch   = errors.New("invalid area record header")
	ErrFieldCount       = errors.New("invalid area record field count")
	ErrNoAreas          = errors.New("area record defines no areas")
	ErrDuplicateIndex   = errors.New("duplicate area index")
	ErrDuplicateSlot    = errors.New("duplicate source slot")
	ErrSlotRange        = errors.New("source slot out of range")
	ErrSelfIntersecting = errors.New("area corners form a self-intersecting quadrilateral")
	ErrWinding          = errors.New("area corners are not ordered top-left, top-right, bottom-right, bottom-left")
)

// ParseString parses an area record held in memory, e.g. a chat caption
func ParseString(record string) ([]models.Area, error) {
	return Parse(strings.NewReader(record))
}

// Parse reads a whole area record. Any malformed line rejects the record.
func Parse(r io.Reader) ([]models.Area, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read area record: %w", err)
		}
		return nil, ErrEmpty
	}
	header := strings.TrimPrefix(strings.TrimRight(scanner.Text(), "\r"), "\ufeff")
	if header != Header {
		return nil, fmt.Errorf("%w: %q", ErrHeaderMismatch, header)
	}

	var result []models.Area
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		area, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		result = append(result, area)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read area record: %w", err)
	}

	if err := Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

func parseLine(line string) (models.Area, error) {
	fields := strings.Split(line, ",")
	if len(fields) != fieldCount {
		return models.Area{}, fmt.Errorf("%w: expected %d, got %d", ErrFieldCount, fieldCount, len(fields))
	}

	values := make([]int, fieldCount)
	for i, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return models.Area{}, fmt.Errorf("failed to parse field %d: %w", i+1, err)
		}
		values[i] = v
	}

	background := values[10]
	if background != 0 && background != 1 {
		return models.Area{}, fmt.Errorf("background flag must be 0 or 1, got %d", background)
	}

	return models.Area{
		Index:       values[0],
		SourceSlot:  values[1],
		TopLeft:     models.Corner{X: values[2], Y: values[3]},
		TopRight:    models.Corner{X: values[4], Y: values[5]},
		BottomRight: models.Corner{X: values[6], Y: values[7]},
		BottomLeft:  models.Corner{X: values[8], Y: values[9]},
		Background:  background == 1,
	}, nil
}

// Format serializes areas back into the record format accepted by Parse
func Format(list []models.Area) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, a := range list {
		bg := 0
		if a.Background {
			bg = 1
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			a.Index, a.SourceSlot,
			a.TopLeft.X, a.TopLeft.Y,
			a.TopRight.X, a.TopRight.Y,
			a.BottomRight.X, a.BottomRight.Y,
			a.BottomLeft.X, a.BottomLeft.Y,
			bg)
	}
	return b.String()
}
