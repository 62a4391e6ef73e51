package cn

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tradecal/internal/calendar"
)

// Constituent is one member of an index snapshot.
type Constituent struct {
	Symbol string
	Name   string
}

// LatestConstituents returns the members of index from the newest snapshot
// dated on or before asOf, and that snapshot's date. Snapshots live at
// <dataDir>/cn/index/<index>/<YYYY-MM-DD>.txt, one "symbol,name" per line.
// A zero asOf takes the newest snapshot.
func LatestConstituents(dataDir, index string, asOf time.Time) ([]Constituent, string, error) {
	dir := filepath.Join(dataDir, "cn", "index", index)
	dates, err := listDatesInDir(dir)
	if err != nil {
		return nil, "", err
	}

	limit := ""
	if !asOf.IsZero() {
		limit = asOf.Format(calendar.DateLayout)
	}
	for i := len(dates) - 1; i >= 0; i-- {
		if limit != "" && dates[i] > limit {
			continue
		}
		members, err := readIndexFile(filepath.Join(dir, dates[i]+".txt"))
		if err != nil {
			return nil, "", err
		}
		return members, dates[i], nil
	}
	return nil, "", fmt.Errorf("no %s snapshot on or before %q in %s", index, limit, dir)
}

// Symbols lists the constituents' symbols in snapshot order.
func Symbols(members []Constituent) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Symbol
	}
	return out
}

// readIndexFile reads a single index file, keeping file order and the first
// line of a repeated symbol.
func readIndexFile(path string) ([]Constituent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var members []Constituent
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		sym := strings.TrimSpace(parts[0])
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		members = append(members, Constituent{Symbol: sym, Name: strings.TrimSpace(parts[1])})
	}
	return members, scanner.Err()
}

// listDatesInDir reads *.txt files from a directory and returns their date
// stems, ascending.
func listDatesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		stem := strings.TrimSuffix(name, ".txt")
		if _, err := time.Parse(calendar.DateLayout, stem); err == nil {
			dates = append(dates, stem)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
