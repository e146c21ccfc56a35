package timegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResolveRangeExcludesEnd(t *testing.T) {
	g, err := Resolve(Range{Start: 0, End: 1, Steps: 5})
	require.NoError(t, err)
	assert.Equal(t, Grid{0, 0.25, 0.5, 0.75}, g)
}

func TestResolveRangeMatchesExplicit(t *testing.T) {
	r := Range{Start: -0.3, End: 2.1, Steps: 17}
	fromRange, err := Resolve(r)
	require.NoError(t, err)

	fromList, err := Resolve(Explicit(append([]float64(nil), fromRange...)))
	require.NoError(t, err)

	assert.Equal(t, fromRange, fromList)
	assert.Len(t, fromRange, 16)
}

func TestResolveRejects(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"nil", nil, ErrMalformed},
		{"one step", Range{Start: 0, End: 1, Steps: 1}, ErrInvalidRange},
		{"reversed", Range{Start: 1, End: 0, Steps: 5}, ErrInvalidRange},
		{"empty list", Explicit{}, ErrNotIncreasing},
		{"repeated", Explicit{0, 1, 1}, ErrNotIncreasing},
		{"decreasing", Explicit{0, 2, 1}, ErrNotIncreasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.spec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveSinglePoint(t *testing.T) {
	g, err := Resolve(Explicit{3.5})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	g, err = Resolve(Range{Start: 0, End: 1, Steps: 2})
	require.NoError(t, err)
	assert.Equal(t, Grid{0}, g)
}

func TestParse(t *testing.T) {
	r, err := ParseRange("0, 1.5, 7")
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 0, End: 1.5, Steps: 7}, r)

	_, err = ParseRange("0,1")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseRange("0,1,x")
	assert.ErrorIs(t, err, ErrMalformed)

	e, err := ParseExplicit("0,0.5,2,")
	require.NoError(t, err)
	assert.Equal(t, Explicit{0, 0.5, 2}, e)
}

func TestFieldYAML(t *testing.T) {
	var doc struct {
		Time Field `yaml:"time"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("time: {start: 0, end: 1, steps: 5}"), &doc))
	assert.Equal(t, Range{Start: 0, End: 1, Steps: 5}, doc.Time.Spec)

	require.NoError(t, yaml.Unmarshal([]byte("time: [0, 0.1, 0.4]"), &doc))
	assert.Equal(t, Explicit{0, 0.1, 0.4}, doc.Time.Spec)

	err := yaml.Unmarshal([]byte("time: 4.0"), &doc)
	assert.ErrorIs(t, err, ErrMalformed)

	out, err := yaml.Marshal(struct {
		Time Field `yaml:"time"`
	}{Field{Range{Start: 0, End: 2, Steps: 3}}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "steps: 3")
}
