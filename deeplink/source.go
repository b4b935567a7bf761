package deeplink

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-authkit-session/internal/loopback"
	"github.com/rs/zerolog/log"
)

// Source delivers callback URLs: the link that launched the process, if any,
// and every link received while running.
type Source interface {
	InitialURL() string
	Subscribe(ctx context.Context) (<-chan string, error)
}

var _ Source = (*ChannelSource)(nil)

// ChannelSource is fed programmatically, e.g. from a command line argument.
type ChannelSource struct {
	initial string
	events  chan string
	once    sync.Once
}

func NewChannelSource(initialURL string) *ChannelSource {
	return &ChannelSource{
		initial: initialURL,
		events:  make(chan string, 16),
	}
}

func (s *ChannelSource) InitialURL() string {
	return s.initial
}

func (s *ChannelSource) Subscribe(_ context.Context) (<-chan string, error) {
	return s.events, nil
}

// Push delivers a URL to the subscriber. It must not be called after Close.
func (s *ChannelSource) Push(url string) {
	s.events <- url
}

// Close ends the event stream.
func (s *ChannelSource) Close() {
	s.once.Do(func() { close(s.events) })
}

var _ Source = (*LoopbackSource)(nil)

// LoopbackSource receives redirects on an http://127.0.0.1 redirect URI.
type LoopbackSource struct {
	redirectURI string
	addr        chan string
}

func NewLoopbackSource(redirectURI string) *LoopbackSource {
	return &LoopbackSource{
		redirectURI: redirectURI,
		addr:        make(chan string, 1),
	}
}

// InitialURL is always empty; a loopback listener has no launch link.
func (s *LoopbackSource) InitialURL() string {
	return ""
}

// Addr returns the bound address once Subscribe has started listening.
func (s *LoopbackSource) Addr() <-chan string {
	return s.addr
}

// Subscribe binds the listener. The channel is closed after ctx is done and
// the listener has shut down.
func (s *LoopbackSource) Subscribe(ctx context.Context) (<-chan string, error) {
	events := make(chan string, 16)
	var mu sync.Mutex
	closed := false

	srv, err := loopback.Listen(s.redirectURI, func(u string) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case events <- u:
		default:
			log.Warn().Msg("callback dropped, listener is not keeping up")
		}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Serve(); err != nil {
			log.Err(err).Msg("callback listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Err(err).Msg("shutting down callback listener")
		}
		mu.Lock()
		closed = true
		close(events)
		mu.Unlock()
	}()

	select {
	case s.addr <- srv.Addr():
	default:
	}
	return events, nil
}
