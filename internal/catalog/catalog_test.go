package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleZMAP = `# lon lat year month day mag depth hour minute second
13.3800 42.3500 2010 3 5 2.1 9.80 12 0 3.5
13.4100 42.3300 2010.0 3 5 1.4 0.00 23 59 59.999999 0.3 0.5 0.1

13.2500 42.4000 2010 3 6 3.0 12.10 0 0 0
`

func TestReadZMAP(t *testing.T) {
	events, err := ReadZMAP(strings.NewReader(sampleZMAP), 6)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, time.Date(2010, 3, 5, 12, 0, 3, 500000000, time.UTC), first.Origin)
	assert.InDelta(t, 2.1, first.Magnitude, 1e-12)
	assert.InDelta(t, 42.35, first.Latitude, 1e-12)
	assert.InDelta(t, 13.38, first.Longitude, 1e-12)
	assert.InDelta(t, 9.8, first.DepthKm, 1e-12)

	second := events[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, time.Date(2010, 3, 5, 23, 59, 59, 999999000, time.UTC), second.Origin)
	assert.InDelta(t, 0.0, second.DepthKm, 0)

	assert.Equal(t, 2, events[2].Index, "blank and comment lines do not consume indexes")
}

func TestReadZMAP_PrecisionApplied(t *testing.T) {
	events, err := ReadZMAP(strings.NewReader("13 42 2010 3 5 1 5 1 2 3.987654\n"), 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 980000000, events[0].Origin.Nanosecond())
}

func TestReadZMAP_Errors(t *testing.T) {
	cases := map[string]string{
		"too few columns": "13 42 2010 3 5 1 5 1 2\n",
		"not a number":    "13 42 2010 3 5 M2 5 1 2 3\n",
		"bad date":        "13 42 2010 2 30 1 5 1 2 3\n",
		"bad latitude":    "13 142 2010 3 5 1 5 1 2 3\n",
		"bad seconds":     "13 42 2010 3 5 1 5 1 2 3.x\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadZMAP(strings.NewReader(sampleZMAP+input), 6)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrCatalog)
			assert.Contains(t, err.Error(), "line 6")
		})
	}
}

func TestReadZMAPFile_Missing(t *testing.T) {
	_, err := ReadZMAPFile(filepath.Join(t.TempDir(), "nope.zmap"), 6)
	require.ErrorIs(t, err, domain.ErrCatalog)
}

func TestReadDayList(t *testing.T) {
	days, err := ReadDayList(strings.NewReader("100305\n\n100306\r\n 100307 \n"))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "100305", days[0].Code)
	assert.Equal(t, "100306", days[1].Code)
	assert.Equal(t, time.Date(2010, 3, 7, 0, 0, 0, 0, time.UTC), days[2].Date)
}

func TestReadDayList_Invalid(t *testing.T) {
	_, err := ReadDayList(strings.NewReader("100305\n1003x5\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadDayListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lista1")
	require.NoError(t, os.WriteFile(path, []byte("100305\n"), 0o644))

	days, err := ReadDayListFile(path)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}
