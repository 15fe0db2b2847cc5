package socket

import (
	"fmt"
	"net/http"
	"slices"
	"time"
)

const DefaultMaxIncomingFrameSize = 64 << 20

type Header struct {
	Key   string
	Value string
}

type Options struct {
	MaxIncomingFrameSize int64
	AdditionalHeaders    []Header
	Subprotocols         []string
	ReadTimeout          time.Duration // zero blocks indefinitely
}

type Option func(*Options)

func WithMaxIncomingFrameSize(size int64) Option {
	return func(o *Options) {
		o.MaxIncomingFrameSize = size
	}
}

func WithHeader(key, value string) Option {
	return func(o *Options) {
		o.AdditionalHeaders = append(o.AdditionalHeaders, Header{Key: key, Value: value})
	}
}

func WithSubprotocols(protocols ...string) Option {
	return func(o *Options) {
		o.Subprotocols = append(o.Subprotocols, protocols...)
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ReadTimeout = timeout
	}
}

func DefaultOptions() Options {
	return Options{
		MaxIncomingFrameSize: DefaultMaxIncomingFrameSize,
	}
}

func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o Options) Validate() error {
	if o.MaxIncomingFrameSize <= 0 {
		return fmt.Errorf("MaxIncomingFrameSize must be positive, got %d", o.MaxIncomingFrameSize)
	}
	if o.ReadTimeout < 0 {
		return fmt.Errorf("ReadTimeout must not be negative, got %v", o.ReadTimeout)
	}
	for _, h := range o.AdditionalHeaders {
		if h.Key == "" {
			return fmt.Errorf("header with empty key")
		}
	}
	return nil
}

func (o Options) Clone() Options {
	o.AdditionalHeaders = slices.Clone(o.AdditionalHeaders)
	o.Subprotocols = slices.Clone(o.Subprotocols)
	return o
}

func (o Options) Equal(other Options) bool {
	return o.MaxIncomingFrameSize == other.MaxIncomingFrameSize &&
		o.ReadTimeout == other.ReadTimeout &&
		slices.Equal(o.AdditionalHeaders, other.AdditionalHeaders) &&
		slices.Equal(o.Subprotocols, other.Subprotocols)
}

func (o Options) header() http.Header {
	h := make(http.Header, len(o.AdditionalHeaders))
	for _, kv := range o.AdditionalHeaders {
		h.Add(kv.Key, kv.Value)
	}
	return h
}
