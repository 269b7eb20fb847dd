package strategy

// Params 内建策略的窗口/阈值参数，默认值与配置档一致。
type Params struct {
	ShortWindow int     `mapstructure:"short_window" yaml:"short_window"`
	LongWindow  int     `mapstructure:"long_window" yaml:"long_window"`
	Window      int     `mapstructure:"window" yaml:"window"`
	UpperBand   float64 `mapstructure:"upper_band" yaml:"upper_band"`
	LowerBand   float64 `mapstructure:"lower_band" yaml:"lower_band"`
	BandStd     float64 `mapstructure:"band_std" yaml:"band_std"`
	BreakoutPad float64 `mapstructure:"breakout_pad" yaml:"breakout_pad"`
}

func DefaultParams() Params {
	return Params{
		ShortWindow: 5,
		LongWindow:  10,
		Window:      10,
		UpperBand:   1.01,
		LowerBand:   0.99,
		BandStd:     2.0,
		BreakoutPad: 0.02,
	}
}

// Normalize 填补零值字段，保证策略侧拿到的参数总是可用的。
func (p Params) Normalize() Params {
	def := DefaultParams()
	if p.ShortWindow <= 0 {
		p.ShortWindow = def.ShortWindow
	}
	if p.LongWindow <= 0 {
		p.LongWindow = def.LongWindow
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.UpperBand <= 0 {
		p.UpperBand = def.UpperBand
	}
	if p.LowerBand <= 0 {
		p.LowerBand = def.LowerBand
	}
	if p.BandStd <= 0 {
		p.BandStd = def.BandStd
	}
	if p.BreakoutPad <= 0 {
		p.BreakoutPad = def.BreakoutPad
	}
	return p
}
