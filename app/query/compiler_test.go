package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestCompile_Empty(t *testing.T) {
	res := Compile("Customer", SearchSpec{})
	assert.Equal(t, "SELECT * FROM Customer", res.Query)
	assert.Equal(t, PageParams{}, res.Page)
}

func TestCompile_Criteria(t *testing.T) {
	tbl := []struct {
		name string
		spec SearchSpec
		out  string
	}{
		{"single bool", SearchSpec{Criteria: []Criterion{{Field: "Active", Value: true, Operator: "="}}},
			"SELECT * FROM Customer WHERE Active = true"},
		{"like", SearchSpec{Criteria: []Criterion{{Field: "DisplayName", Value: "Acme%", Operator: "LIKE"}}},
			"SELECT * FROM Customer WHERE DisplayName LIKE 'Acme%'"},
		{"multiple joined with AND", SearchSpec{Criteria: []Criterion{
			{Field: "Active", Value: true, Operator: "="},
			{Field: "Balance", Value: 100, Operator: ">"},
		}}, "SELECT * FROM Customer WHERE Active = true AND Balance > 100"},
		{"in list", SearchSpec{Criteria: []Criterion{
			{Field: "Id", Value: []interface{}{"1", "2", "3"}, Operator: "IN"},
		}}, "SELECT * FROM Customer WHERE Id IN ('1', '2', '3')"},
		{"null value", SearchSpec{Criteria: []Criterion{{Field: "ParentRef", Value: nil, Operator: "="}}},
			"SELECT * FROM Customer WHERE ParentRef = NULL"},
		{"float from json", SearchSpec{Criteria: []Criterion{{Field: "Balance", Value: 10.5, Operator: ">="}}},
			"SELECT * FROM Customer WHERE Balance >= 10.5"},
		{"whole float renders as int", SearchSpec{Criteria: []Criterion{{Field: "Balance", Value: float64(50), Operator: "="}}},
			"SELECT * FROM Customer WHERE Balance = 50"},
		{"empty field skipped", SearchSpec{Criteria: []Criterion{
			{Field: "", Value: "x", Operator: "="},
			{Field: "Active", Value: false, Operator: "="},
		}}, "SELECT * FROM Customer WHERE Active = false"},
		{"all fields skipped drops WHERE", SearchSpec{Criteria: []Criterion{{Field: "", Value: "x"}}},
			"SELECT * FROM Customer"},
		{"unknown operator falls back to =", SearchSpec{Criteria: []Criterion{{Field: "Id", Value: "5", Operator: "!="}}},
			"SELECT * FROM Customer WHERE Id = '5'"},
		{"missing operator defaults to =", SearchSpec{Criteria: []Criterion{{Field: "Id", Value: "5"}}},
			"SELECT * FROM Customer WHERE Id = '5'"},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, Compile("Customer", tt.spec).Query)
		})
	}
}

func TestCompile_QuoteEscaping(t *testing.T) {
	res := Compile("Customer", SearchSpec{Criteria: []Criterion{
		{Field: "DisplayName", Value: "O'Brien", Operator: "="},
	}})
	assert.Equal(t, `SELECT * FROM Customer WHERE DisplayName = 'O\'Brien'`, res.Query)
	assert.NotContains(t, res.Query, "'O'", "embedded quote must not terminate the literal")
}

func TestCompile_Sort(t *testing.T) {
	res := Compile("Invoice", SearchSpec{OrderAsc: "TxnDate"})
	assert.Equal(t, "SELECT * FROM Invoice ORDERBY TxnDate ASC", res.Query)

	res = Compile("Invoice", SearchSpec{OrderDesc: "TotalAmt"})
	assert.Equal(t, "SELECT * FROM Invoice ORDERBY TotalAmt DESC", res.Query)

	// both at once is allowed and produces a doubled clause, see package doc
	res = Compile("Invoice", SearchSpec{OrderAsc: "TxnDate", OrderDesc: "TotalAmt"})
	assert.Equal(t, "SELECT * FROM Invoice ORDERBY TxnDate ASC ORDERBY TotalAmt DESC", res.Query)
}

func TestCompile_Pagination(t *testing.T) {
	tbl := []struct {
		name          string
		limit, offset *int
		page          PageParams
	}{
		{"no pagination", nil, nil, PageParams{}},
		{"limit only", intp(50), nil, PageParams{Size: 50}},
		{"offset multiple of limit", intp(10), intp(30), PageParams{Size: 10, Number: 4}},
		{"offset not aligned rounds down", intp(10), intp(35), PageParams{Size: 10, Number: 4}},
		{"offset with default page size", nil, intp(40), PageParams{Number: 3}},
		{"zero limit ignored", intp(0), intp(40), PageParams{Number: 3}},
		{"zero offset ignored", intp(25), intp(0), PageParams{Size: 25}},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			res := Compile("Bill", SearchSpec{Limit: tt.limit, Offset: tt.offset})
			assert.Equal(t, tt.page, res.Page)
			assert.Equal(t, "SELECT * FROM Bill", res.Query, "pagination never leaks into query text")
		})
	}
}

func TestCompile_ScenarioA(t *testing.T) {
	res := Compile("Customer", SearchSpec{
		Criteria: []Criterion{{Field: "Active", Value: true, Operator: "="}},
		Limit:    intp(50),
		OrderAsc: "DisplayName",
	})
	assert.Equal(t, "SELECT * FROM Customer WHERE Active = true ORDERBY DisplayName ASC", res.Query)
	assert.Equal(t, PageParams{Size: 50}, res.Page)
}
