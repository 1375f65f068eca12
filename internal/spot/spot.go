package spot

// Spot is one decoded CW skimmer report.
type Spot struct {
	// Zulu is the report time as printed by the skimmer, e.g. "1234Z".
	Zulu string `json:"zulu"`

	// Spotter is the reporting skimmer's callsign.
	Spotter string `json:"spotter"`

	// Frequency is in kHz.
	Frequency float64 `json:"frequency"`

	// Callsign is the station heard, without any /suffix.
	Callsign string `json:"callsign"`

	// SNR is the signal-to-noise ratio in dB as printed (digits only).
	SNR string `json:"snr"`

	// WPM is the sending speed.
	WPM int `json:"wpm"`
}

// Band returns the amateur band of the spot in meters, or 0 when the
// frequency is outside every band.
func (s Spot) Band() int {
	b, _ := BandOf(s.Frequency)
	return b
}
