package record

// Mixer sums every participant's PCM into one output: one virtual
// source node per track, all feeding a single destination.
type Mixer struct {
	scratch []int16
}

func NewMixer(frameSamples int) *Mixer {
	return &Mixer{scratch: make([]int16, frameSamples)}
}

// Mix fills dst with the clamped sum of all sources. Sources that
// deliver fewer samples than requested contribute silence for the rest
// of the window.
func (m *Mixer) Mix(dst []int16, sources []AudioSource) {
	for i := range dst {
		dst[i] = 0
	}
	if len(sources) == 0 {
		return
	}
	acc := make([]int32, len(dst))
	for _, src := range sources {
		n := src.ReadPCM(m.scratch[:len(dst)])
		for i := 0; i < n; i++ {
			acc[i] += int32(m.scratch[i])
		}
	}
	for i, v := range acc {
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst[i] = int16(v)
	}
}
