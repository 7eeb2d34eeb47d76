// Package query translates structured search specs into the QuickBooks Online
// query language. The dialect is SQL-ish but proprietary: no placeholders, no
// joins, single-quoted strings, ORDERBY as one word. Pagination is not part of
// the query text; it compiles to separate page params the client maps to
// STARTPOSITION/MAXRESULTS.
//
// The compiler is deliberately permissive: criteria with an empty field are
// skipped, unknown operators fall back to "=", and offsets not aligned to the
// page size round down to the enclosing page.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"
)

// DefaultPageSize matches the backend's implicit page size and is used for
// offset-to-page conversion when no limit is given.
const DefaultPageSize = 20

// operators accepted as-is, everything else falls back to "="
var validOps = map[string]struct{}{
	"=": {}, "<": {}, ">": {}, "<=": {}, ">=": {}, "LIKE": {}, "IN": {},
}

// Criterion is a single filter condition on an entity field.
type Criterion struct {
	Field    string      `json:"field"`
	Value    interface{} `json:"value"`
	Operator string      `json:"operator"`
}

// SearchSpec describes a filtered, sorted and paginated entity search.
// Limit and Offset are pointers to distinguish "unset" from zero.
type SearchSpec struct {
	Criteria  []Criterion `json:"criteria,omitempty"`
	Limit     *int        `json:"limit,omitempty"`
	Offset    *int        `json:"offset,omitempty"`
	OrderAsc  string      `json:"asc,omitempty"`
	OrderDesc string      `json:"desc,omitempty"`
}

// PageParams carry pagination outside the query text. Zero value means unset.
type PageParams struct {
	Size   int `json:"size,omitempty"`
	Number int `json:"number,omitempty"`
}

// Compiled is the result of compiling a SearchSpec for one entity.
type Compiled struct {
	Query string
	Page  PageParams
}

// Compile builds the query text and page params for the given entity name.
// An empty spec compiles to the unfiltered "SELECT * FROM <Entity>".
func Compile(entity string, spec SearchSpec) Compiled {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(entity)

	conds := make([]string, 0, len(spec.Criteria))
	for _, c := range spec.Criteria {
		if c.Field == "" {
			log.Printf("[WARN] skip criterion with empty field, value %v", c.Value)
			continue
		}
		op := strings.ToUpper(strings.TrimSpace(c.Operator))
		if op == "" {
			op = "="
		}
		if _, ok := validOps[op]; !ok {
			log.Printf("[WARN] unknown operator %q for field %s, using =", c.Operator, c.Field)
			op = "="
		}
		conds = append(conds, c.Field+" "+op+" "+formatValue(c.Value, op))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	// both sort fields may be set; emitted in asc, desc order as-is
	if spec.OrderAsc != "" {
		sb.WriteString(" ORDERBY ")
		sb.WriteString(spec.OrderAsc)
		sb.WriteString(" ASC")
	}
	if spec.OrderDesc != "" {
		sb.WriteString(" ORDERBY ")
		sb.WriteString(spec.OrderDesc)
		sb.WriteString(" DESC")
	}

	return Compiled{Query: sb.String(), Page: pageParams(spec.Limit, spec.Offset)}
}

// pageParams converts limit/offset to page size and 1-based page number.
// Rounds down when offset is not a multiple of the effective page size.
func pageParams(limit, offset *int) PageParams {
	res := PageParams{}
	if limit != nil && *limit > 0 {
		res.Size = *limit
	}
	if offset != nil && *offset > 0 {
		size := res.Size
		if size == 0 {
			size = DefaultPageSize
		}
		res.Number = *offset/size + 1
	}
	return res
}

// formatValue renders a criterion value for the query text. Strings are
// single-quoted with embedded quotes backslash-escaped, which is the only
// escaping the backend understands.
func formatValue(v interface{}, op string) string {
	if op == "IN" {
		return formatList(v)
	}
	return formatScalar(v)
}

func formatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		// json numbers decode to float64; render integers without the point
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		// permissive fallback, coerce to a quoted string
		return quote(fmt.Sprintf("%v", val))
	}
}

func formatList(v interface{}) string {
	var elems []string
	switch vals := v.(type) {
	case []interface{}:
		for _, e := range vals {
			elems = append(elems, formatScalar(e))
		}
	case []string:
		for _, e := range vals {
			elems = append(elems, quote(e))
		}
	default:
		elems = append(elems, formatScalar(v))
	}
	return "(" + strings.Join(elems, ", ") + ")"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}
