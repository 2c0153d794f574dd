package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCaseAndWhitespaceVariants(t *testing.T) {
	cases := []struct {
		columns []string
		name    string
		want    string
	}{
		{[]string{"Departamento"}, "DEPARTAMENTO", "Departamento"},
		{[]string{"  departamento  "}, "Departamento", "  departamento  "},
		{[]string{"NORTE", "ESTE"}, " norte", "NORTE"},
		{[]string{"Estado", "ESTADO "}, "estado", "Estado"},
	}
	for _, c := range cases {
		got, err := Resolve(c.columns, c.name)
		require.NoError(t, err, c.name)
		assert.Equal(t, c.want, got)
	}
}

func TestResolveMissingColumn(t *testing.T) {
	_, err := Resolve([]string{"A", "B"}, "Distrito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	var cnf *ColumnNotFoundError
	require.True(t, errors.As(err, &cnf))
	assert.Equal(t, "Distrito", cnf.Name)
	assert.Equal(t, []string{"A", "B"}, cnf.Available)
	assert.Contains(t, err.Error(), `"A"`)
}

func TestResolveAnyUsesAliasOrder(t *testing.T) {
	cols := []string{"COORD_NORTE", "norte"}
	got, err := ResolveAny(cols, []string{"NORTE", "COORD_NORTE"})
	require.NoError(t, err)
	assert.Equal(t, "norte", got)

	_, err = ResolveAny(cols, []string{"ESTE", "COORD_ESTE"})
	var cnf *ColumnNotFoundError
	require.True(t, errors.As(err, &cnf))
	assert.Equal(t, "ESTE", cnf.Name)
}

func TestTableLookupAndFilter(t *testing.T) {
	tb := New([]string{"Estado", "NORTE"}, [][]string{{"ACTIVO", "1"}, {"INACTIVO", "2"}})
	assert.Equal(t, 1, tb.Lookup("norte"))
	assert.Equal(t, -1, tb.Lookup("este"))

	kept := tb.Filter(func(r []string) bool { return r[0] == "ACTIVO" })
	assert.Equal(t, 1, kept.Len())
	assert.Equal(t, 2, tb.Len())
	assert.Equal(t, "", Cell(kept.Rows[0], 5))
	assert.True(t, IsNull("  "))
}
