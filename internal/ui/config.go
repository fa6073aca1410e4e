package ui

// Config contains window and audio settings for the ebiten host.
type Config struct {
	Title      string // window title
	Scale      int    // integer upscaling factor
	SampleRate int    // audio sample rate in Hz, must match the APU's mix rate
	StatePath  string // save-state file used by the F5/F9 hotkeys
}

// Defaults fills in zero fields with sane values.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "pocketgb"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.StatePath == "" {
		c.StatePath = "state.sav"
	}
}
