package clipstats

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// LogHeader is the first line of the clip log.
var LogHeader = []string{"loc", "can", "lado", "local_date", "local_hour"}

// Row is one recorded clip in the log.
type Row struct {
	Venue string
	Court string
	Side  string
	Date  string // YYYY-MM-DD in the stats timezone
	Hour  string // 00-23
}

// NewRow places t in loc and builds the log row for a clip of cell.
func NewRow(venue, court, side string, t time.Time, loc *time.Location) Row {
	local := t.In(loc)
	return Row{
		Venue: venue,
		Court: court,
		Side:  side,
		Date:  local.Format("2006-01-02"),
		Hour:  local.Format("15"),
	}
}

// ParseLog reads the clip log. The header may be missing; rows with too few
// columns are skipped. Columns are located by header name when present.
func ParseLog(data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	index := map[string]int{}
	for i, name := range LogHeader {
		index[name] = i
	}

	var rows []Row
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse clip log: %w", err)
		}
		if first {
			first = false
			if isHeader(record) {
				index = map[string]int{}
				for i, name := range record {
					index[strings.TrimSpace(name)] = i
				}
				continue
			}
		}
		row, ok := rowFrom(record, index)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// isHeader reports whether record names every LogHeader column, in any order.
func isHeader(record []string) bool {
	names := make(map[string]bool, len(record))
	for _, cell := range record {
		names[strings.TrimSpace(cell)] = true
	}
	for _, name := range LogHeader {
		if !names[name] {
			return false
		}
	}
	return true
}

func rowFrom(record []string, index map[string]int) (Row, bool) {
	values := make([]string, len(LogHeader))
	for i, name := range LogHeader {
		pos, ok := index[name]
		if !ok || pos >= len(record) {
			return Row{}, false
		}
		values[i] = strings.TrimSpace(record[pos])
	}
	return Row{Venue: values[0], Court: values[1], Side: values[2], Date: values[3], Hour: values[4]}, true
}

// EncodeLog renders rows with the header line.
func EncodeLog(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(LogHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Venue, r.Court, r.Side, r.Date, r.Hour}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode clip log: %w", err)
	}
	return buf.Bytes(), nil
}

// DayCount is the number of clips a court recorded on one day.
type DayCount struct {
	Venue string `json:"loc"`
	Court string `json:"can"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// HourCount is the number of clips a court recorded in one hour of the day,
// summed across days.
type HourCount struct {
	Venue string `json:"loc"`
	Court string `json:"can"`
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// SideBalance compares the clip counts of each side of a court on one day.
// Diff is the spread between the busiest and the quietest side.
type SideBalance struct {
	Venue  string         `json:"loc"`
	Court  string         `json:"can"`
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts_por_lado"`
	Diff   int            `json:"diff"`
}

// Stats is the aggregated metrics document.
type Stats struct {
	ByDay       []DayCount    `json:"by_day_per_cancha"`
	ByHour      []HourCount   `json:"by_hour_per_cancha"`
	SideBalance []SideBalance `json:"lado_balance_per_day"`
	GeneratedAt string        `json:"generated_at_utc"`
}

type dayKey struct{ venue, court, date string }
type hourKey struct{ venue, court, hour string }

// Compute aggregates rows. Lists are sorted by count (or diff) descending,
// then by venue, court and date or hour ascending.
func Compute(rows []Row, now time.Time) Stats {
	perDay := map[dayKey]int{}
	perHour := map[hourKey]int{}
	perSide := map[dayKey]map[string]int{}
	for _, r := range rows {
		dk := dayKey{r.Venue, r.Court, r.Date}
		perDay[dk]++
		perHour[hourKey{r.Venue, r.Court, r.Hour}]++
		if perSide[dk] == nil {
			perSide[dk] = map[string]int{}
		}
		perSide[dk][r.Side]++
	}

	stats := Stats{
		ByDay:       make([]DayCount, 0, len(perDay)),
		ByHour:      make([]HourCount, 0, len(perHour)),
		SideBalance: make([]SideBalance, 0, len(perSide)),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	for k, n := range perDay {
		stats.ByDay = append(stats.ByDay, DayCount{Venue: k.venue, Court: k.court, Date: k.date, Count: n})
	}
	sort.Slice(stats.ByDay, func(i, j int) bool {
		a, b := stats.ByDay[i], stats.ByDay[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return lessKey(a.Venue, a.Court, a.Date, b.Venue, b.Court, b.Date)
	})

	for k, n := range perHour {
		stats.ByHour = append(stats.ByHour, HourCount{Venue: k.venue, Court: k.court, Hour: k.hour, Count: n})
	}
	sort.Slice(stats.ByHour, func(i, j int) bool {
		a, b := stats.ByHour[i], stats.ByHour[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return lessKey(a.Venue, a.Court, a.Hour, b.Venue, b.Court, b.Hour)
	})

	for k, counts := range perSide {
		lo, hi := -1, 0
		for _, n := range counts {
			if lo < 0 || n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
		stats.SideBalance = append(stats.SideBalance, SideBalance{
			Venue: k.venue, Court: k.court, Date: k.date, Counts: counts, Diff: hi - lo,
		})
	}
	sort.Slice(stats.SideBalance, func(i, j int) bool {
		a, b := stats.SideBalance[i], stats.SideBalance[j]
		if a.Diff != b.Diff {
			return a.Diff > b.Diff
		}
		return lessKey(a.Venue, a.Court, a.Date, b.Venue, b.Court, b.Date)
	})
	return stats
}

func lessKey(av, ac, ak, bv, bc, bk string) bool {
	if av != bv {
		return av < bv
	}
	if ac != bc {
		return ac < bc
	}
	return ak < bk
}
