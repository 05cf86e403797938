package renderer

// presenter submits and presents recorded frames so the next frame can be
// recorded meanwhile.
type presenter struct {
	backend Backend
	in      chan PresentData
}

func (p *presenter) run() {
	for data := range p.in {
		stale, err := p.backend.Present(data.Info)
		if err != nil {
			fatalf("failed to present frame %d: %s", data.Info.Frame, err)
		}
		result := presentOK
		if stale {
			result = presentStale
		}
		data.sync.release(result)
	}
}
