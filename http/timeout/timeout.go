package timeout

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/naisu-labs/naisu/models"
	"github.com/rs/zerolog"
)

type panicInfo struct {
	Value any
	Stack []byte
}

// New runs the route handler with a deadline and answers 504 with the API envelope once
// reqTimeout elapses. It must be the last middleware before the route handler: the handler
// runs on a copy of the gin context, since gin recycles the original as soon as this
// middleware returns. Its response is buffered and flushed only when it finishes in time.
func New(reqTimeout time.Duration, log zerolog.Logger) gin.HandlerFunc {
	bufPool := &timeout.BufferPool{}

	return func(c *gin.Context) {
		var (
			w      = c.Writer
			buffer = bufPool.Get()
			tw     = newWriter(w, buffer)
			handle = c.Handler()
		)

		buffer.Reset()

		cCopy := c.Copy()
		cCopy.Writer = tw

		// the handler runs on the copy only
		c.Abort()

		finish := make(chan struct{}, 1)
		panicChan := make(chan panicInfo, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicChan <- panicInfo{Value: p, Stack: debug.Stack()}
				}
			}()

			handle(cCopy)
			finish <- struct{}{}
		}()

		select {
		case pi := <-panicChan:
			tw.discard()
			bufPool.Put(buffer)

			log.Error().
				Any("panic", pi.Value).
				Str("stack", string(pi.Stack)).
				Str("middleware", "timeout").
				Str("http.method", c.Request.Method).
				Str("http.path", c.Request.URL.Path).
				Msg("HTTP request panicked")

			c.AbortWithStatusJSON(http.StatusInternalServerError, envelope(http.StatusInternalServerError))

		case <-finish:
			tw.flush()
			bufPool.Put(buffer)

		case <-time.After(reqTimeout):
			tw.discard()
			bufPool.Put(buffer)

			log.Warn().
				Str("http.method", c.Request.Method).
				Str("http.path", c.Request.URL.Path).
				Msg("HTTP request timed out")

			if !w.Written() {
				c.AbortWithStatusJSON(http.StatusGatewayTimeout, envelope(http.StatusGatewayTimeout))
			}
		}
	}
}

func envelope(code int) models.Envelope {
	return models.Envelope{
		Success: false,
		Code:    code,
		Message: http.StatusText(code),
		Error:   http.StatusText(code),
	}
}

// writer buffers the body and headers until the handler completes. Once discarded every
// write is dropped, the handler may still be running.
type writer struct {
	gin.ResponseWriter

	mu       sync.Mutex
	body     *bytes.Buffer
	headers  http.Header
	code     int
	timedOut bool
}

func newWriter(w gin.ResponseWriter, buf *bytes.Buffer) *writer {
	return &writer{ResponseWriter: w, body: buf, headers: make(http.Header)}
}

func (w *writer) Header() http.Header {
	return w.headers
}

func (w *writer) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// gin uses -1 to skip writing the status code
	if w.timedOut || code == -1 || w.code != 0 {
		return
	}

	w.code = code
}

// WriteHeaderNow is deferred to flush, the underlying writer must stay untouched until then
func (w *writer) WriteHeaderNow() {}

func (w *writer) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timedOut || w.body == nil {
		return 0, nil
	}

	if w.code == 0 {
		w.code = http.StatusOK
	}

	return w.body.Write(data)
}

func (w *writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *writer) Status() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.code == 0 {
		return http.StatusOK
	}

	return w.code
}

func (w *writer) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.code != 0
}

func (w *writer) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.body == nil {
		return -1
	}

	return w.body.Len()
}

func (w *writer) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	dst := w.ResponseWriter.Header()
	for k, vv := range w.headers {
		dst[k] = vv
	}

	if w.code != 0 {
		w.ResponseWriter.WriteHeader(w.code)
	}

	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}

	w.body = nil
}

func (w *writer) discard() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.timedOut = true
	w.body = nil
}
