package browser

import (
	"context"
	"fmt"
	"io"

	pkgbrowser "github.com/pkg/browser"
)

func init() {
	// Browser launchers print to the terminal; keep CLI output clean
	pkgbrowser.Stdout = io.Discard
	pkgbrowser.Stderr = io.Discard
}

// Opener navigates the user's browser to a URL.
type Opener interface {
	OpenURL(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) OpenURL(ctx context.Context, url string) error {
	return f(ctx, url)
}

var _ Opener = SystemOpener{}

// SystemOpener launches the platform's default browser, honouring $BROWSER.
type SystemOpener struct{}

func (SystemOpener) OpenURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pkgbrowser.OpenURL(url); err != nil {
		return fmt.Errorf("[SystemOpener.OpenURL] browser.OpenURL: %w", err)
	}
	return nil
}
