package quickbooks_test

import (
	"testing"

	"invoice-agent/internal/quickbooks"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"INV-1001":     `'INV-1001'`,
		"O'Brien":      `'O\'Brien'`,
		`back\slash`:   `'back\\slash'`,
		`\' OR 1=1 --`: `'\\\' OR 1=1 --'`,
		"":             `''`,
	}
	for in, want := range tests {
		assert.Equal(t, want, quickbooks.Quote(in), "Quote(%q)", in)
	}
}

func TestValidID(t *testing.T) {
	assert.True(t, quickbooks.ValidID("1"))
	assert.True(t, quickbooks.ValidID("9130357766213466"))
	assert.False(t, quickbooks.ValidID(""))
	assert.False(t, quickbooks.ValidID("12a"))
	assert.False(t, quickbooks.ValidID("1 OR 1=1"))
	assert.False(t, quickbooks.ValidID("../companyinfo"))
}

func TestQueryBuilder(t *testing.T) {
	q := quickbooks.Select("Invoice").
		Where("DocNumber", "=", "O'Neil").
		WhereRaw("Balance > '0'").
		OrderBy("MetaData.CreateTime DESC").
		Page(21, 10)
	assert.Equal(t,
		`SELECT * FROM Invoice WHERE DocNumber = 'O\'Neil' AND Balance > '0' ORDERBY MetaData.CreateTime DESC STARTPOSITION 21 MAXRESULTS 10`,
		q.String())

	assert.Equal(t, "SELECT * FROM Customer", quickbooks.Select("Customer").String())
}
