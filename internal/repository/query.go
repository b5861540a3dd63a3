package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AlertQuery is a compiled filter for the alerts table.
type AlertQuery struct {
	Where    string
	Args     []interface{}
	OrderBy  string
	Page     int
	PageSize int
}

// alert columns addressable from query parameters.
var alertColumns = map[string]string{
	"resource":          "resource",
	"event":             "event",
	"environment":       "environment",
	"severity":          "severity",
	"status":            "status",
	"group":             `"group"`,
	"value":             "value",
	"text":              "text",
	"origin":            "origin",
	"type":              "type",
	"customer":          "customer",
	"previous_severity": "previous_severity",
	"trend_indication":  "trend_indication",
}

var sortColumns = map[string]string{
	"lastReceiveTime": "last_receive_time",
	"createTime":      "create_time",
	"receiveTime":     "receive_time",
	"severity":        "severity",
	"status":          "status",
	"resource":        "resource",
	"event":           "event",
	"environment":     "environment",
	"duplicateCount":  "duplicate_count",
}

// reserved query parameters that are not column filters.
var reservedParams = map[string]bool{
	"q": true, "page": true, "page-size": true, "limit": true,
	"sort-by": true, "reverse": true, "group-by": true,
	"from-date": true, "to-date": true, "show-history": true,
	"show-raw-data": true,
}

// BuildAlertQuery compiles request parameters into a WHERE fragment
// with positional arguments. Value prefixes: `>` and `<` compare,
// `~` matches case-insensitively, `~!` negates the match, `!`
// negates equality. Repeated positive values OR together; negated
// values AND together. customers, when non-nil, scopes the query.
func BuildAlertQuery(params map[string][]string, customers []string) (*AlertQuery, error) {
	q := &AlertQuery{Where: "1=1", Page: 1, PageSize: 50}

	arg := func(v interface{}) string {
		q.Args = append(q.Args, v)
		return fmt.Sprintf("$%d", len(q.Args))
	}

	if customers != nil {
		q.Where += fmt.Sprintf(" AND customer=ANY(%s)", arg(customers))
	}

	for param, values := range params {
		if reservedParams[param] || len(values) == 0 {
			continue
		}
		switch {
		case param == "id":
			var terms []string
			for _, v := range values {
				p := arg(v + "%")
				terms = append(terms, fmt.Sprintf("(id::text LIKE %s OR last_receive_id::text LIKE %s)", p, p))
			}
			q.Where += " AND (" + strings.Join(terms, " OR ") + ")"

		case param == "service":
			var pos, neg []string
			for _, v := range values {
				if strings.HasPrefix(v, "!") {
					neg = append(neg, fmt.Sprintf("NOT (%s=ANY(service))", arg(v[1:])))
				} else {
					pos = append(pos, fmt.Sprintf("%s=ANY(service)", arg(v)))
				}
			}
			q.Where += joinTerms(pos, neg)

		case param == "tag":
			var pos, neg []string
			for _, v := range values {
				if strings.HasPrefix(v, "!") {
					neg = append(neg, fmt.Sprintf("NOT (%s=ANY(tags))", arg(v[1:])))
				} else {
					pos = append(pos, fmt.Sprintf("%s=ANY(tags)", arg(v)))
				}
			}
			q.Where += joinTerms(pos, neg)

		case strings.HasPrefix(param, "attributes."):
			key := strings.TrimPrefix(param, "attributes.")
			col := fmt.Sprintf("attributes->>%s", arg(key))
			var pos, neg []string
			for _, v := range values {
				appendOpTerm(col, v, arg, &pos, &neg)
			}
			q.Where += joinTerms(pos, neg)

		default:
			col, ok := alertColumns[param]
			if !ok {
				return nil, fmt.Errorf("invalid filter parameter %q", param)
			}
			var pos, neg []string
			for _, v := range values {
				appendOpTerm(col, v, arg, &pos, &neg)
			}
			q.Where += joinTerms(pos, neg)
		}
	}

	if v := first(params, "from-date"); v != "" {
		t, err := parseQueryTime(v)
		if err != nil {
			return nil, err
		}
		q.Where += fmt.Sprintf(" AND last_receive_time > %s", arg(t))
	}
	if v := first(params, "to-date"); v != "" {
		t, err := parseQueryTime(v)
		if err != nil {
			return nil, err
		}
		q.Where += fmt.Sprintf(" AND last_receive_time <= %s", arg(t))
	}

	reverse := first(params, "reverse") == "true"
	var order []string
	for _, s := range params["sort-by"] {
		dir := "ASC"
		if strings.HasPrefix(s, "-") {
			s = s[1:]
			dir = "DESC"
		}
		if reverse {
			if dir == "ASC" {
				dir = "DESC"
			} else {
				dir = "ASC"
			}
		}
		col, ok := sortColumns[s]
		if !ok {
			return nil, fmt.Errorf("invalid sort-by parameter %q", s)
		}
		order = append(order, col+" "+dir)
	}
	if len(order) == 0 {
		order = []string{"last_receive_time DESC"}
	}
	q.OrderBy = strings.Join(order, ", ")

	if v := first(params, "page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page parameter %q", v)
		}
		q.Page = n
	}
	pageSize := first(params, "page-size")
	if pageSize == "" {
		pageSize = first(params, "limit")
	}
	if pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page-size parameter %q", pageSize)
		}
		if n > 1000 {
			n = 1000
		}
		q.PageSize = n
	}
	return q, nil
}

// appendOpTerm compiles one value with its optional prefix operator.
func appendOpTerm(col, value string, arg func(interface{}) string, pos, neg *[]string) {
	switch {
	case strings.HasPrefix(value, "~!"):
		*neg = append(*neg, fmt.Sprintf("%s NOT ILIKE %s", col, arg("%"+value[2:]+"%")))
	case strings.HasPrefix(value, "~"):
		*pos = append(*pos, fmt.Sprintf("%s ILIKE %s", col, arg("%"+value[1:]+"%")))
	case strings.HasPrefix(value, "!"):
		*neg = append(*neg, fmt.Sprintf("%s != %s", col, arg(value[1:])))
	case strings.HasPrefix(value, ">"):
		*pos = append(*pos, fmt.Sprintf("%s > %s", col, arg(value[1:])))
	case strings.HasPrefix(value, "<"):
		*pos = append(*pos, fmt.Sprintf("%s < %s", col, arg(value[1:])))
	default:
		*pos = append(*pos, fmt.Sprintf("%s = %s", col, arg(value)))
	}
}

func joinTerms(pos, neg []string) string {
	out := ""
	if len(pos) > 0 {
		out += " AND (" + strings.Join(pos, " OR ") + ")"
	}
	if len(neg) > 0 {
		out += " AND (" + strings.Join(neg, " AND ") + ")"
	}
	return out
}

func first(params map[string][]string, key string) string {
	if vs := params[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseQueryTime accepts RFC 3339 or epoch seconds.
func parseQueryTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time value %q", v)
}
