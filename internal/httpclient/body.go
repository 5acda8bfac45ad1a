package httpclient

import (
	"context"
	"io"
	"sync"
)

// cancelOnClose releases the timeout context of a request once its body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
