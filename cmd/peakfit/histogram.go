package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readHistogram parses one channel per line, either "count" or
// "channel<sep>count" with comma, semicolon, tab or space as separator.
// Blank lines and lines starting with '#' are skipped. Channels of
// single-column input count up from zero.
func readHistogram(r io.Reader) ([]int, []float64, error) {
	var (
		channels []int
		counts   []float64
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == '\t' || r == ' '
		})

		var (
			ch  int
			val string
		)
		switch len(fields) {
		case 1:
			ch, val = len(counts), fields[0]
			if len(channels) > 0 {
				ch = channels[len(channels)-1] + 1
			}
		case 2:
			c, err := strconv.Atoi(fields[0])
			if err != nil {
				// A header row such as "channel,count".
				if len(counts) == 0 {
					continue
				}
				return nil, nil, fmt.Errorf("line %d: invalid channel %q", lineNo, fields[0])
			}
			ch, val = c, fields[1]
		default:
			return nil, nil, fmt.Errorf("line %d: expected 1 or 2 fields, got %d", lineNo, len(fields))
		}

		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid count %q", lineNo, val)
		}
		channels = append(channels, ch)
		counts = append(counts, v)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read histogram: %w", err)
	}
	return channels, counts, nil
}
