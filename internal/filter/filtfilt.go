package filter

// padLen is the odd-extension length used at each edge, three times the
// number of taps of the equivalent single filter.
func (b *Bandpass) padLen() int {
	return 3 * (2*len(b.sections) + 1)
}

// initialState returns per-section delay lines for a unit step input, each
// scaled by the DC gain of the sections in front of it.
func (b *Bandpass) initialState() [][2]float64 {
	zi := make([][2]float64, len(b.sections))
	scale := 1.0
	for i, s := range b.sections {
		z1, z2 := s.steadyState()
		zi[i] = [2]float64{scale * z1, scale * z2}
		scale *= s.dcGain()
	}
	return zi
}

// filterPass runs the cascade over y in place, starting every section from
// zi scaled by x0.
func (b *Bandpass) filterPass(y []float64, zi [][2]float64, x0 float64) {
	for i, s := range b.sections {
		s.run(y, zi[i][0]*x0, zi[i][1]*x0)
	}
}

// FiltFilt applies the filter forward and then backward so the output has no
// phase delay. The input is left untouched and the output has the same length.
func (b *Bandpass) FiltFilt(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	edge := b.padLen()
	if edge > n-1 {
		edge = n - 1
	}

	// Odd extension around both end points
	ext := make([]float64, n+2*edge)
	for i := 0; i < edge; i++ {
		ext[i] = 2*x[0] - x[edge-i]
		ext[n+edge+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[edge:], x)

	zi := b.initialState()

	b.filterPass(ext, zi, ext[0])
	reverse(ext)
	b.filterPass(ext, zi, ext[0])
	reverse(ext)

	copy(out, ext[edge:edge+n])
	return out
}

// Apply filters every channel of data independently and returns a new
// buffer of the same shape.
func (b *Bandpass) Apply(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for ch, samples := range data {
		out[ch] = b.FiltFilt(samples)
	}
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
