package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ReturnsMatrix is the scenario-return dataset every variant consumes:
// S scenario rows by N labeled asset columns, fully populated with finite
// values. Construct with NewReturnsMatrix; the value is immutable afterwards,
// so concurrent solves may share one instance.
type ReturnsMatrix struct {
	labels []string
	data   *mat.Dense // S×N, rows are scenarios
}

// NewReturnsMatrix validates and wraps a rectangular dataset. Each row of
// rows is one scenario holding a return per asset, in label order. Any gap,
// ragged row, non-finite value, or label problem is an InputError.
func NewReturnsMatrix(labels []string, rows [][]float64) (*ReturnsMatrix, error) {
	if len(labels) == 0 {
		return nil, inputErrorf("no asset labels provided")
	}
	if len(rows) == 0 {
		return nil, inputErrorf("returns matrix has no scenario rows")
	}

	seen := make(map[string]bool, len(labels))
	for i, label := range labels {
		if label == "" {
			return nil, inputErrorf("asset label at position %d is empty", i)
		}
		if seen[label] {
			return nil, inputErrorf("duplicate asset label %q", label)
		}
		seen[label] = true
	}

	nAssets := len(labels)
	data := mat.NewDense(len(rows), nAssets, nil)
	for s, row := range rows {
		if len(row) != nAssets {
			return nil, inputErrorf("scenario %d has %d returns, expected %d", s, len(row), nAssets)
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, inputErrorf("scenario %d has non-finite return %v for asset %q", s, v, labels[i])
			}
			data.Set(s, i, v)
		}
	}

	return &ReturnsMatrix{
		labels: append([]string(nil), labels...),
		data:   data,
	}, nil
}

// Labels returns the asset labels in column order.
func (m *ReturnsMatrix) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Assets returns the number of asset columns.
func (m *ReturnsMatrix) Assets() int {
	return len(m.labels)
}

// Scenarios returns the number of scenario rows.
func (m *ReturnsMatrix) Scenarios() int {
	r, _ := m.data.Dims()
	return r
}

// At returns the return of asset column i in scenario row s.
func (m *ReturnsMatrix) At(s, i int) float64 {
	return m.data.At(s, i)
}

// Rows returns a copy of the raw scenario rows.
func (m *ReturnsMatrix) Rows() [][]float64 {
	rows := make([][]float64, m.Scenarios())
	for s := range rows {
		rows[s] = mat.Row(nil, s, m.data)
	}
	return rows
}

// Means computes the per-asset arithmetic mean return across scenarios.
// The result only depends on the stored data, so repeated calls agree
// bit for bit.
func (m *ReturnsMatrix) Means() []float64 {
	means := make([]float64, m.Assets())
	for i := range means {
		means[i] = stat.Mean(mat.Col(nil, i, m.data), nil)
	}
	return means
}

// Deviations returns the S×N matrix of returns centered column-wise by the
// given means. len(means) must equal Assets().
func (m *ReturnsMatrix) Deviations(means []float64) *mat.Dense {
	nScen, nAssets := m.data.Dims()
	dev := mat.NewDense(nScen, nAssets, nil)
	for s := 0; s < nScen; s++ {
		for i := 0; i < nAssets; i++ {
			dev.Set(s, i, m.data.At(s, i)-means[i])
		}
	}
	return dev
}

// ExpectedReturn computes the mean portfolio return for labeled weights.
// Labels absent from the weight map contribute nothing.
func (m *ReturnsMatrix) ExpectedReturn(weights map[string]float64) float64 {
	means := m.Means()
	total := 0.0
	for i, label := range m.labels {
		total += means[i] * weights[label]
	}
	return total
}
