package remote

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Row maps column names to scalar values. Numbers are json.Number.
type Row map[string]interface{}

// Get returns a column, falling back to a case-insensitive match since
// column case differs between SQL engines.
func (r Row) Get(column string) (interface{}, bool) {
	if v, ok := r[column]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

// String returns a column as text. Missing and null columns are "".
func (r Row) String(column string) string {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// Int returns a column as an integer. Both numbers and numeric strings are
// accepted; anything else reports false.
func (r Row) Int(column string) (int, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return 0, false
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Relation is the kind of cross-reference aggregated by the count query.
type Relation string

const (
	RelationOverridden Relation = "Overridden"
	RelationXref       Relation = "Xref"
)

// OriginRow is one row of the origin query: a member inherited from a
// superclass together with the ancestor that first declared it.
type OriginRow struct {
	Parent     string // declaring class, upper-cased
	Key        string // normalized member name
	Origin     string // ancestor that first declared the member
	MemberType string // method, property, query, ...
	MemberName string // member name as declared on the ancestor
}

// CrossRefRow is one row of the cross-reference count query.
type CrossRefRow struct {
	Key      string // normalized member name
	Relation Relation
	Count    int
}

// CallSiteRow is one row of the reference query.
type CallSiteRow struct {
	CallingClass  string
	CallingMember string
	Line          int // 1-based
}

// DecodeOriginRows converts origin query rows. Rows without a member key or
// origin are skipped and counted.
func DecodeOriginRows(rs *ResultSet) (rows []OriginRow, skipped int) {
	if rs == nil {
		return nil, 0
	}
	rows = make([]OriginRow, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		key := r.String("Name")
		origin := r.String("Origin")
		if key == "" || origin == "" {
			skipped++
			continue
		}
		name := r.String("MemberName")
		if name == "" {
			name = strings.TrimPrefix(key, " ")
		}
		rows = append(rows, OriginRow{
			Parent:     r.String("Parent"),
			Key:        key,
			Origin:     origin,
			MemberType: r.String("MemberType"),
			MemberName: name,
		})
	}
	return rows, skipped
}

// DecodeCrossRefRows converts count query rows. Any XrefType other than
// Overridden is a plain cross-reference. Rows without a member or with an
// unreadable count are skipped.
func DecodeCrossRefRows(rs *ResultSet) (rows []CrossRefRow, skipped int) {
	if rs == nil {
		return nil, 0
	}
	rows = make([]CrossRefRow, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		key := r.String("MemberName")
		count, ok := r.Int("xCount")
		if key == "" || !ok || count < 0 {
			skipped++
			continue
		}
		rel := RelationXref
		if r.String("XrefType") == string(RelationOverridden) {
			rel = RelationOverridden
		}
		rows = append(rows, CrossRefRow{Key: key, Relation: rel, Count: count})
	}
	return rows, skipped
}

// DecodeCallSiteRows converts reference query rows. Rows without a calling
// class or line number are skipped.
func DecodeCallSiteRows(rs *ResultSet) (rows []CallSiteRow, skipped int) {
	if rs == nil {
		return nil, 0
	}
	rows = make([]CallSiteRow, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		class := r.String("CalledByKey1")
		line, ok := r.Int("LineNumber")
		if class == "" || !ok {
			skipped++
			continue
		}
		rows = append(rows, CallSiteRow{
			CallingClass:  class,
			CallingMember: r.String("CalledByKey2"),
			Line:          line,
		})
	}
	return rows, skipped
}
