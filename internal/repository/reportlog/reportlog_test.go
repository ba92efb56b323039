package reportlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarida/backend/internal/domain"
)

func TestAppend_OneLinePerReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportes_usuarios.csv")
	log := New(path)
	ts := time.Date(2025, 6, 5, 14, 30, 0, 0, time.UTC)

	require.NoError(t, log.Append(domain.Report{
		Timestamp:    ts,
		Name:         "Ana",
		Municipality: "Riohacha",
		Message:      "El jagüey está seco, 3 semanas sin lluvia",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "2025-06-05T14:30:00Z,"))
	assert.Contains(t, lines[0], "Ana,Riohacha,")
	assert.Contains(t, lines[0], `"El jagüey está seco, 3 semanas sin lluvia"`)
}

func TestRecent_NewestFirst(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "reports.csv"))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"uno", "dos", "tres"} {
		require.NoError(t, log.Append(domain.Report{
			Timestamp: base.AddDate(0, 0, i),
			Name:      name,
			Message:   "linea 1\nlinea 2",
		}))
	}

	got, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tres", got[0].Name)
	assert.Equal(t, "dos", got[1].Name)
	assert.Equal(t, "linea 1\nlinea 2", got[0].Message)
	assert.Equal(t, base.AddDate(0, 0, 2), got[0].Timestamp)
}

func TestRecent_MissingFile(t *testing.T) {
	got, err := New(filepath.Join(t.TempDir(), "none.csv")).Recent(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecent_SkipsMalformedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportes_usuarios.csv")
	lines := "2025-06-01T08:00:00Z,Ana,Uribia,pozo seco\n" +
		"ayer,Luis,Maicao,sin agua\n" +
		"2025-06-03T09:15:00Z,,Manaure,cultivos perdidos\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	got, err := New(path).Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Manaure", got[0].Municipality)
	assert.Equal(t, "Ana", got[1].Name)
	for _, r := range got {
		assert.False(t, r.Timestamp.IsZero())
	}
}
