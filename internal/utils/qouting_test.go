package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	testCases := []struct {
		name      string
		inputName string
		dialect   string
		expected  string
	}{
		{"MySQL Basic", "my_table", "mysql", "`my_table`"},
		{"MySQL With Backtick", "my`table", "mysql", "`my``table`"},
		{"PostgreSQL Basic", "MyTable", "postgres", `"MyTable"`},
		{"PostgreSQL With Quote", `My"Table`, "postgres", `"My""Table"`},
		{"SQLite Basic", "some_column", "sqlite", `"some_column"`},
		{"SQLite With Quote", `another"column`, "sqlite", `"another""column"`},
		{"SQLServer Basic", "orders", "sqlserver", "[orders]"},
		{"SQLServer With Bracket", "odd]name", "sqlserver", "[odd]]name]"},
		{"Oracle Basic", "EMPLOYEES", "oracle", `"EMPLOYEES"`},
		{"Unknown Dialect Fallback", "fallback_id", "unknown", `"fallback_id"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := QuoteIdentifier(tc.inputName, tc.dialect)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestUnquoteIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		dialect  string
		expected string
	}{
		{"MySQL Quoted", "`my_table`", "mysql", "my_table"},
		{"MySQL Escaped Backtick", "`my``table`", "mysql", "my`table"},
		{"MySQL Not Quoted", "plain", "mysql", "plain"},
		{"PostgreSQL Quoted", `"MyTable"`, "postgres", "MyTable"},
		{"PostgreSQL Escaped Quote", `"My""Table"`, "postgres", `My"Table`},
		{"SQLServer Quoted", "[orders]", "sqlserver", "orders"},
		{"SQLServer Escaped Bracket", "[odd]]name]", "sqlserver", "odd]name"},
		{"Oracle Quoted", `"EMPLOYEES"`, "oracle", "EMPLOYEES"},
		{"Too Short", "x", "mysql", "x"},
		{"Empty", "", "postgres", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := UnquoteIdentifier(tc.input, tc.dialect)
			assert.Equal(t, tc.expected, actual)
		})
	}
}
