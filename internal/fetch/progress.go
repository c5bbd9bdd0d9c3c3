package fetch

import "io"

// Observer receives byte progress for a single fetch. total is -1 when the
// response did not declare its length.
type Observer interface {
	Progress(received, total int64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(received, total int64)

// Progress calls f(received, total).
func (f ObserverFunc) Progress(received, total int64) {
	f(received, total)
}

// Percent converts progress to a whole percentage in [0, 100]. The result is
// floored, so it only reaches 100 once received equals total. ok is false
// when total is unknown.
func Percent(received, total int64) (pct int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	if received >= total {
		return 100, true
	}
	if received <= 0 {
		return 0, true
	}
	return int(received * 100 / total), true
}

// progressReader counts bytes read from r and reports them to obs. It keeps
// the first non-EOF read error so callers can tell transport failures from
// extraction failures.
type progressReader struct {
	r        io.Reader
	obs      Observer
	received int64
	total    int64
	err      error
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		if p.obs != nil {
			p.obs.Progress(p.received, p.total)
		}
	}
	if err != nil && err != io.EOF && p.err == nil {
		p.err = err
	}
	return n, err
}
