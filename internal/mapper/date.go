package mapper

import (
	"fmt"
	"strings"
	"time"
)

// DateAuto asks the mapper to try the common bank layouts in order.
const DateAuto = "auto"

// autoLayouts are tried in order. US month-first wins over day-first when a
// date is valid under both.
var autoLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	"1/2/06",
	"1-2-2006",
	"2006/1/2",
	"2/1/2006",
	"2.1.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
}

var strftime = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "1",
	'd': "2",
	'e': "_2",
	'b': "Jan",
	'h': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'H': "15",
	'I': "3",
	'M': "04",
	'S': "05",
	'p': "PM",
	'j': "002",
	'%': "%",
}

// Layouts resolves a mapping's date format into Go layouts. The format may be
// "auto", a strftime pattern such as "%m/%d/%Y", or a Go reference layout.
func Layouts(format string) ([]string, error) {
	format = strings.TrimSpace(format)
	switch {
	case format == "" || strings.EqualFold(format, DateAuto):
		return autoLayouts, nil
	case strings.Contains(format, "%"):
		layout, err := convertStrftime(format)
		if err != nil {
			return nil, err
		}
		return []string{layout}, nil
	}

	probe := time.Date(2011, 11, 23, 21, 37, 48, 0, time.UTC)
	if probe.Format(format) == format {
		return nil, fmt.Errorf("date format %q has no date elements", format)
	}
	return []string{format}, nil
}

func convertStrftime(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i < len(format) && format[i] == '-' {
			i++ // %-d and %-m: Go's non-padded elements already accept both
		}
		if i >= len(format) {
			return "", fmt.Errorf("date format %q ends with a bare %%", format)
		}
		rep, ok := strftime[format[i]]
		if !ok {
			return "", fmt.Errorf("date format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(rep)
	}
	return b.String(), nil
}
