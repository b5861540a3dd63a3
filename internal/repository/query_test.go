package repository

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAlertQueryDefaults(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1", q.Where)
	assert.Empty(t, q.Args)
	assert.Equal(t, "last_receive_time DESC", q.OrderBy)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 50, q.PageSize)
}

func TestBuildAlertQueryEquality(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"environment": {"Production"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND (environment = $1)", q.Where)
	assert.Equal(t, []interface{}{"Production"}, q.Args)
}

func TestBuildAlertQueryRepeatedValuesOr(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"severity": {"major", "critical"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND (severity = $1 OR severity = $2)", q.Where)
}

func TestBuildAlertQueryOperators(t *testing.T) {
	cases := []struct {
		value string
		want  string
		arg   interface{}
	}{
		{"~web", "1=1 AND (resource ILIKE $1)", "%web%"},
		{"~!web", "1=1 AND (resource NOT ILIKE $1)", "%web%"},
		{"!web01", "1=1 AND (resource != $1)", "web01"},
		{">m", "1=1 AND (resource > $1)", "m"},
		{"<m", "1=1 AND (resource < $1)", "m"},
	}
	for _, tc := range cases {
		q, err := BuildAlertQuery(url.Values{"resource": {tc.value}}, nil)
		require.NoError(t, err, tc.value)
		assert.Equal(t, tc.want, q.Where, tc.value)
		assert.Equal(t, []interface{}{tc.arg}, q.Args, tc.value)
	}
}

func TestBuildAlertQueryNegationsAnd(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"status": {"!closed", "!expired"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND (status != $1 AND status != $2)", q.Where)
}

func TestBuildAlertQueryMixedPositiveNegative(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"severity": {"major", "!normal"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND (severity = $1) AND (severity != $2)", q.Where)
}

func TestBuildAlertQueryServiceAndTags(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"service": {"web"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND ($1=ANY(service))", q.Where)

	q, err = BuildAlertQuery(url.Values{"tag": {"dc:eu", "!stale"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND ($1=ANY(tags)) AND (NOT ($2=ANY(tags)))", q.Where)
}

func TestBuildAlertQueryAttributes(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"attributes.region": {"eu-west-1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND (attributes->>$1 = $2)", q.Where)
	assert.Equal(t, []interface{}{"region", "eu-west-1"}, q.Args)
}

func TestBuildAlertQueryIDPrefix(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"id": {"7f4bdc70"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, q.Where, "id::text LIKE $1")
	assert.Contains(t, q.Where, "last_receive_id::text LIKE $1")
	assert.Equal(t, []interface{}{"7f4bdc70%"}, q.Args)
}

func TestBuildAlertQueryCustomerScope(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{}, []string{"acme", "globex"})
	require.NoError(t, err)
	assert.Equal(t, "1=1 AND customer=ANY($1)", q.Where)
	assert.Equal(t, []interface{}{[]string{"acme", "globex"}}, q.Args)
}

func TestBuildAlertQueryDateRange(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{
		"from-date": {"2024-03-05T00:00:00Z"},
		"to-date":   {"1709769600"},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, q.Where, "last_receive_time > $1")
	assert.Contains(t, q.Where, "last_receive_time <= $2")

	_, err = BuildAlertQuery(url.Values{"from-date": {"yesterday"}}, nil)
	assert.Error(t, err)
}

func TestBuildAlertQuerySort(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"sort-by": {"severity", "-createTime"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "severity ASC, create_time DESC", q.OrderBy)

	q, err = BuildAlertQuery(url.Values{"sort-by": {"severity"}, "reverse": {"true"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "severity DESC", q.OrderBy)

	_, err = BuildAlertQuery(url.Values{"sort-by": {"shoeSize"}}, nil)
	assert.Error(t, err)
}

func TestBuildAlertQueryPaging(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"page": {"3"}, "page-size": {"20"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, 20, q.PageSize)

	// limit is an alias, capped at 1000
	q, err = BuildAlertQuery(url.Values{"limit": {"5000"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, q.PageSize)

	_, err = BuildAlertQuery(url.Values{"page": {"0"}}, nil)
	assert.Error(t, err)
}

func TestBuildAlertQueryReservedAndInvalid(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"q": {"free text"}, "show-history": {"true"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1", q.Where)

	_, err = BuildAlertQuery(url.Values{"shoe": {"11"}}, nil)
	assert.Error(t, err)
}

func TestBuildAlertQueryGroupQuoted(t *testing.T) {
	q, err := BuildAlertQuery(url.Values{"group": {"Web"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, `1=1 AND ("group" = $1)`, q.Where)
}
