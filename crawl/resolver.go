package crawl

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Date components a filename pattern can capture.
const (
	Year      = "year"
	Month     = "month"
	Day       = "day"
	JulianDay = "julian_day"
	Hour      = "hour"
	Minute    = "minute"
	Second    = "second"
)

var dateComponents = map[string]struct{}{Year: {}, Month: {}, Day: {}, JulianDay: {}, Hour: {}, Minute: {}, Second: {}}

type ResolverKind int

const (
	FieldOrderKind ResolverKind = iota
	NamedGroupsKind
	FuncKind
)

func (k ResolverKind) String() string {
	switch k {
	case FieldOrderKind:
		return "field_order"
	case NamedGroupsKind:
		return "named_groups"
	case FuncKind:
		return "func"
	}
	return fmt.Sprintf("ResolverKind(%d)", int(k))
}

// DateResolver maps a tile path to its acquisition time. Exactly one of the
// three modes is set; patterns are matched against the file base name.
type DateResolver struct {
	kind   ResolverKind
	re     *regexp.Regexp
	fields []string
	groups map[string]string
	fn     func(path string) (time.Time, error)
}

// FieldOrder resolves dates from the capture groups of pattern, taken in
// order, where fields[i] names the date component of group i+1. An empty
// field or "_" skips its group.
func FieldOrder(pattern string, fields ...string) (*DateResolver, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid date pattern %q: %v", pattern, err)
	}
	if re.NumSubexp() != len(fields) {
		return nil, fmt.Errorf("date pattern %q has %d groups but %d fields were given", pattern, re.NumSubexp(), len(fields))
	}
	hasYear := false
	for _, f := range fields {
		if f == "" || f == "_" {
			continue
		}
		if _, ok := dateComponents[f]; !ok {
			return nil, fmt.Errorf("unknown date component %q", f)
		}
		hasYear = hasYear || f == Year
	}
	if !hasYear {
		return nil, fmt.Errorf("date pattern %q does not capture a year", pattern)
	}
	return &DateResolver{kind: FieldOrderKind, re: re, fields: append([]string(nil), fields...)}, nil
}

// NamedGroups resolves dates from the named groups of pattern. groups maps a
// group name to a date component; with a nil map the group names themselves
// must be component names, as in (?P<year>\d{4}).
func NamedGroups(pattern string, groups map[string]string) (*DateResolver, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid date pattern %q: %v", pattern, err)
	}

	mapping := make(map[string]string)
	names := make(map[string]struct{})
	for _, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		names[name] = struct{}{}
		if groups == nil {
			if _, ok := dateComponents[name]; ok {
				mapping[name] = name
			}
		}
	}
	for name, comp := range groups {
		if _, ok := names[name]; !ok {
			return nil, fmt.Errorf("date pattern %q has no group named %q", pattern, name)
		}
		if _, ok := dateComponents[comp]; !ok {
			return nil, fmt.Errorf("unknown date component %q", comp)
		}
		mapping[name] = comp
	}

	hasYear := false
	for _, comp := range mapping {
		hasYear = hasYear || comp == Year
	}
	if !hasYear {
		return nil, fmt.Errorf("date pattern %q does not capture a year", pattern)
	}
	return &DateResolver{kind: NamedGroupsKind, re: re, groups: mapping}, nil
}

// ResolverFunc wraps an arbitrary path to time function.
func ResolverFunc(fn func(path string) (time.Time, error)) *DateResolver {
	return &DateResolver{kind: FuncKind, fn: fn}
}

func (r *DateResolver) Kind() ResolverKind { return r.kind }

// Resolve returns the time of path or a *DateParseError.
func (r *DateResolver) Resolve(path string) (time.Time, error) {
	if r.kind == FuncKind {
		if r.fn == nil {
			return time.Time{}, &DateParseError{Path: path, Reason: "no resolver function"}
		}
		t, err := r.fn(path)
		if err != nil {
			return time.Time{}, &DateParseError{Path: path, Reason: err.Error()}
		}
		if t.IsZero() {
			return time.Time{}, &DateParseError{Path: path, Reason: "resolver returned the zero time"}
		}
		return t.UTC(), nil
	}

	nameFields, err := r.parseName(path)
	if err != nil {
		return time.Time{}, &DateParseError{Path: path, Reason: err.Error()}
	}
	t, err := parseTime(nameFields)
	if err != nil {
		return time.Time{}, &DateParseError{Path: path, Reason: err.Error()}
	}
	return t, nil
}

// parseName extracts the date components captured from the base name.
func (r *DateResolver) parseName(path string) (map[string]string, error) {
	basename := filepath.Base(path)
	match := r.re.FindStringSubmatch(basename)
	if match == nil {
		return nil, fmt.Errorf("%q does not match %q", basename, r.re.String())
	}

	result := make(map[string]string)
	switch r.kind {
	case FieldOrderKind:
		for i, f := range r.fields {
			if f != "" && f != "_" {
				result[f] = match[i+1]
			}
		}
	case NamedGroupsKind:
		for i, name := range r.re.SubexpNames() {
			if comp, ok := r.groups[name]; ok && i != 0 {
				result[comp] = match[i]
			}
		}
	}
	return result, nil
}

// parseTime builds a UTC time from captured components. Month and day take
// precedence over julian_day; every component is range checked.
func parseTime(nameFields map[string]string) (time.Time, error) {
	values := make(map[string]int, len(nameFields))
	for comp, s := range nameFields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s %q is not a number", comp, s)
		}
		values[comp] = v
	}

	year, ok := values[Year]
	if !ok {
		return time.Time{}, fmt.Errorf("no year captured")
	}
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("year %d out of range", year)
	}

	month, hasMonth := values[Month]
	day, hasDay := values[Day]
	julianDay, hasJulian := values[JulianDay]

	var t time.Time
	switch {
	case hasMonth:
		if month < 1 || month > 12 {
			return time.Time{}, fmt.Errorf("month %d out of range", month)
		}
		if !hasDay {
			day = 1
		}
		if day < 1 || day > daysIn(time.Month(month), year) {
			return time.Time{}, fmt.Errorf("day %d out of range for %d-%02d", day, year, month)
		}
		t = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	case hasDay:
		return time.Time{}, fmt.Errorf("day captured without a month")
	case hasJulian:
		last := 365
		if daysIn(time.February, year) == 29 {
			last = 366
		}
		if julianDay < 1 || julianDay > last {
			return time.Time{}, fmt.Errorf("day of year %d out of range for %d", julianDay, year)
		}
		t = time.Date(year, 1, julianDay, 0, 0, 0, 0, time.UTC)
	default:
		t = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	limits := []struct {
		comp string
		max  int
		unit time.Duration
	}{{Hour, 23, time.Hour}, {Minute, 59, time.Minute}, {Second, 59, time.Second}}
	for _, l := range limits {
		v, ok := values[l.comp]
		if !ok {
			continue
		}
		if v < 0 || v > l.max {
			return time.Time{}, fmt.Errorf("%s %d out of range", l.comp, v)
		}
		t = t.Add(l.unit * time.Duration(v))
	}
	return t, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
