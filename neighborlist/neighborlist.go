// Package neighborlist reads precomputed allow-lists restricting which
// survivors may exchange messages at each sampled time.
//
// The file starts with a "minTime maxTime" header. Every following line
// is "time host neighbor1 neighbor2 ..." with host addresses as integers.
// Blank lines and lines starting with '#' are ignored.
package neighborlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
)

var (
	ErrMalformedHeader = errors.New("malformed neighbor list header")
	ErrMalformedLine   = errors.New("malformed neighbor list line")
)

type key struct {
	host int
	time float64
}

// List is a parsed neighbor-list file. The zero value and Empty() have
// no opinion about any host.
type List struct {
	min, max float64
	entries  map[key][]int
}

// Empty returns a list that restricts nothing.
func Empty() *List {
	return &List{}
}

// Load reads the file at path. A missing file is an error unless
// optional is set, in which case the empty list is returned.
func Load(path string, optional bool) (*List, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("neighborlist: expand %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("neighborlist: open %q: %w", expanded, err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("neighborlist: %s: %w", expanded, err)
	}
	return l, nil
}

// Parse reads a neighbor list from r.
func Parse(r io.Reader) (*List, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	l := &List{entries: make(map[key][]int)}
	header := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if !header {
			if err := l.parseHeader(fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			header = true
			continue
		}
		if err := l.parseLine(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !header {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedHeader)
	}
	return l, nil
}

func (l *List) parseHeader(fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("%w: want \"minTime maxTime\", got %d fields", ErrMalformedHeader, len(fields))
	}
	lo, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	hi, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if hi < lo {
		return fmt.Errorf("%w: max %v before min %v", ErrMalformedHeader, hi, lo)
	}
	l.min, l.max = lo, hi
	return nil
}

func (l *List) parseLine(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("%w: want \"time host [neighbors...]\"", ErrMalformedLine)
	}
	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("%w: time: %v", ErrMalformedLine, err)
	}
	host, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("%w: host: %v", ErrMalformedLine, err)
	}
	neighbors := make([]int, 0, len(fields)-2)
	for _, f := range fields[2:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("%w: neighbor: %v", ErrMalformedLine, err)
		}
		neighbors = append(neighbors, n)
	}
	k := key{host: host, time: t}
	l.entries[k] = append(l.entries[k], neighbors...)
	return nil
}

// Range returns the header's time bounds.
func (l *List) Range() (min, max float64) { return l.min, l.max }

// Len returns the number of (host, time) rows.
func (l *List) Len() int { return len(l.entries) }

// Neighbors returns the hosts host may exchange with at sampleTime. ok
// is false when the file has no row for that host and time, including
// every time outside the header range.
func (l *List) Neighbors(host int, sampleTime float64) (allowed []int, ok bool) {
	if l == nil || l.entries == nil || sampleTime < l.min || sampleTime > l.max {
		return nil, false
	}
	allowed, ok = l.entries[key{host: host, time: sampleTime}]
	return allowed, ok
}
