package filter

// Params selects the band-pass applied to every epoch.
type Params struct {
	Order   int     `mapstructure:"order" yaml:"order"`     // Prototype order (band-pass has twice as many poles)
	LowCut  float64 `mapstructure:"lowcut" yaml:"lowcut"`   // Lower cutoff in Hz
	HighCut float64 `mapstructure:"highcut" yaml:"highcut"` // Upper cutoff in Hz
}

// DefaultParams returns the 8-30 Hz order 4 band used ahead of alpha analysis.
func DefaultParams() Params {
	return Params{
		Order:   DefaultOrder,
		LowCut:  8,
		HighCut: 30,
	}
}

// Condition designs the band-pass for fs and applies it to every channel of
// data. It owns no state between calls. On a configuration error nothing is
// returned but the error.
func Condition(data [][]float64, fs float64, p Params) ([][]float64, error) {
	order := p.Order
	if order == 0 {
		order = DefaultOrder
	}
	bp, err := Design(order, p.LowCut, p.HighCut, fs)
	if err != nil {
		return nil, err
	}
	return bp.Apply(data), nil
}
