package gpu

// Options controls session creation.
type Options struct {
	// DeviceIndex selects which device to use (0 = default).
	DeviceIndex int

	// StreamCount requests a number of execution streams.
	StreamCount int
}

// Session owns a device context and its streams.
//
// A Session is not safe for concurrent use; distinct streams may be driven
// from distinct goroutines.
type Session struct {
	ctx     Context
	streams []Stream
	options Options
}

// Open creates a session on the registered backend.
func Open(opts Options) (*Session, error) {
	backend := getBackend()
	if backend == nil {
		return nil, ErrNoBackend
	}

	if !backend.Available() {
		return nil, ErrBackendUnavailable
	}

	ctx, err := backend.NewContext(opts.DeviceIndex)
	if err != nil {
		return nil, err
	}

	streamCount := opts.StreamCount
	if streamCount <= 0 {
		streamCount = 1
	}

	streams := make([]Stream, 0, streamCount)
	for range streamCount {
		stream, err := ctx.NewStream()
		if err != nil {
			for _, s := range streams {
				_ = s.Close()
			}

			_ = ctx.Close()

			return nil, err
		}

		streams = append(streams, stream)
	}

	return &Session{ctx: ctx, streams: streams, options: opts}, nil
}

// Context returns the session's device context.
func (s *Session) Context() Context {
	return s.ctx
}

// Device describes the session's device.
func (s *Session) Device() DeviceInfo {
	return s.ctx.Device()
}

// Stream returns stream i.
func (s *Session) Stream(i int) Stream {
	return s.streams[i]
}

// Streams returns the number of streams.
func (s *Session) Streams() int {
	return len(s.streams)
}

// NewFieldBuffer allocates the real and imaginary planes of one component.
func (s *Session) NewFieldBuffer(n int) (FieldBuffer, error) {
	re, err := s.ctx.NewBuffer(n)
	if err != nil {
		return FieldBuffer{}, err
	}

	im, err := s.ctx.NewBuffer(n)
	if err != nil {
		_ = re.Close()

		return FieldBuffer{}, err
	}

	return FieldBuffer{Real: re, Imag: im}, nil
}

// Upload enqueues a copy of a host field into f.
func (f FieldBuffer) Upload(s Stream, src Field) error {
	if err := f.Real.Upload(s, src.Real); err != nil {
		return err
	}

	return f.Imag.Upload(s, src.Imag)
}

// Download enqueues a copy of f into a host field.
func (f FieldBuffer) Download(s Stream, dst Field) error {
	if err := f.Real.Download(s, dst.Real); err != nil {
		return err
	}

	return f.Imag.Download(s, dst.Imag)
}

// UploadRect enqueues a copy of the cells r of a host tile into f.
func (f FieldBuffer) UploadRect(s Stream, src Field, stride int, r Rect) error {
	if err := f.Real.UploadRect(s, src.Real, stride, r); err != nil {
		return err
	}

	return f.Imag.UploadRect(s, src.Imag, stride, r)
}

// DownloadRect enqueues a copy of the cells r of f into a host tile.
func (f FieldBuffer) DownloadRect(s Stream, dst Field, stride int, r Rect) error {
	if err := f.Real.DownloadRect(s, dst.Real, stride, r); err != nil {
		return err
	}

	return f.Imag.DownloadRect(s, dst.Imag, stride, r)
}

// Close releases both planes.
func (f FieldBuffer) Close() error {
	var firstErr error

	for _, b := range []Buffer{f.Real, f.Imag} {
		if b == nil {
			continue
		}

		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Synchronize waits for every stream of the session.
func (s *Session) Synchronize() error {
	var firstErr error

	for _, st := range s.streams {
		if err := st.Synchronize(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Close releases the streams and the context.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	var firstErr error

	for _, st := range s.streams {
		if st == nil {
			continue
		}

		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.streams = nil

	if s.ctx != nil {
		if err := s.ctx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		s.ctx = nil
	}

	return firstErr
}
