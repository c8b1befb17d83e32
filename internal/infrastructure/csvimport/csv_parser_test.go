package csvimport

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVParser_StripsBOM(t *testing.T) {
	data := "\xEF\xBB\xBFusername,email\nada,ada@x.com\n"

	p, err := NewCSVParser(strings.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	assert.Equal(t, []string{"username", "email"}, p.Headers())
}

func TestNewCSVParser_RejectsInvalidEncoding(t *testing.T) {
	data := "username\n\xFF\xFEada\n"

	_, err := NewCSVParser(strings.NewReader(data))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestNewCSVParser_RuneAcrossBufferBoundary(t *testing.T) {
	// Pad so the two bytes of "é" straddle the 4096 byte mark.
	header := "username,firstname\n"
	pad := strings.Repeat("x", 4095-len(header))
	data := header + pad + "é,A\n"

	p, err := NewCSVParser(strings.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	rows, err := p.ReadAllRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pad+"é", rows[0].Get("username"))
}

func TestNewCSVParser_RejectsInvalidByteInTail(t *testing.T) {
	data := "username\n" + strings.Repeat("ada\n", 2048) + "\xFFbob\n"

	_, err := NewCSVParser(strings.NewReader(data))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestNewCSVParser_RejectsEmptyFile(t *testing.T) {
	_, err := NewCSVParser(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseHeader(t *testing.T) {
	t.Run("lowercases header names", func(t *testing.T) {
		p, err := NewCSVParser(strings.NewReader("Username,EMAIL,FirstName\n"))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		assert.Equal(t, []string{"username", "email", "firstname"}, p.Headers())
		assert.True(t, p.HasHeader("Email"))
	})

	t.Run("rejects duplicate columns", func(t *testing.T) {
		p, err := NewCSVParser(strings.NewReader("username,Username\n"))
		require.NoError(t, err)

		err = p.ParseHeader()
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("rejects blank column name", func(t *testing.T) {
		p, err := NewCSVParser(strings.NewReader("username,,email\n"))
		require.NoError(t, err)

		err = p.ParseHeader()
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestReadRow(t *testing.T) {
	data := "username,email,firstname\nada,ada@x.com,Ada\nbob,,\n"

	p, err := NewCSVParser(strings.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	row, err := p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "ada", row.Get("username"))
	assert.Equal(t, "ada@x.com", row.Get("Email"))

	row, err = p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 3, row.LineNumber)
	assert.Equal(t, "", row.Get("email"))
	assert.True(t, row.Has("email"))
	assert.False(t, row.Has("lastname"))

	_, err = p.ReadRow()
	assert.Equal(t, io.EOF, err)
}

func TestReadRow_ShortRecordPadsEmpty(t *testing.T) {
	data := "username,email\nada\n"

	p, err := NewCSVParser(strings.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	row, err := p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, "ada", row.Get("username"))
	assert.Equal(t, "", row.Get("email"))
}

func TestReadAllRows_SkipsEmpty(t *testing.T) {
	data := "username,email\nada,ada@x.com\n,\nbob,bob@x.com\n"

	p, err := NewCSVParser(strings.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	rows, err := p.ReadAllRows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0].Get("username"))
	assert.Equal(t, "bob", rows[1].Get("username"))
}

func TestRow_Set(t *testing.T) {
	row := &Row{Data: map[string]string{"department": ""}}
	row.Set("Department", "org7")
	assert.Equal(t, "org7", row.Get("department"))
}

func TestParseFromBytes_Delimiter(t *testing.T) {
	data := []byte("username;email\nada;ada@x.com\n")

	p, err := ParseFromBytes(data, WithDelimiter(';'))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	row, err := p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", row.Get("email"))
}
