// Package platform abstracts the host facilities the deep-link transports need: opening a
// URL in another app and asking whether an app is installed.
package platform

import (
	"context"
	"net/url"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("platform")

// Opener hands u to the OS. A non-nil returned URL is the wallet's reply when the wallet
// returned control in-process instead of relaunching the host app.
type Opener interface {
	Open(ctx context.Context, u *url.URL) (*url.URL, error)
}

type OpenerFunc func(ctx context.Context, u *url.URL) (*url.URL, error)

func (f OpenerFunc) Open(ctx context.Context, u *url.URL) (*url.URL, error) {
	return f(ctx, u)
}

// LogOpener only logs. The daemon uses it: the URL is returned to the caller, who opens it.
type LogOpener struct {
	lk   sync.Mutex
	last *url.URL
}

func (o *LogOpener) Open(_ context.Context, u *url.URL) (*url.URL, error) {
	o.lk.Lock()
	o.last = u
	o.lk.Unlock()
	log.Infof("open %s", u.String())
	return nil, nil
}

// Last returns the most recently opened URL.
func (o *LogOpener) Last() *url.URL {
	o.lk.Lock()
	defer o.lk.Unlock()
	return o.last
}

// InstallProbe answers whether an app handling scheme is installed. It must not block.
type InstallProbe interface {
	CanOpen(scheme string) bool
}

// SchemeProbe only answers for schemes declared queryable, the way mobile platforms
// refuse to probe undeclared schemes.
type SchemeProbe struct {
	queryable map[string]struct{}
	installed map[string]struct{}
}

func NewSchemeProbe(queryable, installed []string) *SchemeProbe {
	p := &SchemeProbe{
		queryable: make(map[string]struct{}),
		installed: make(map[string]struct{}),
	}
	for _, s := range queryable {
		p.queryable[normalizeScheme(s)] = struct{}{}
	}
	for _, s := range installed {
		p.installed[normalizeScheme(s)] = struct{}{}
	}
	return p
}

func (p *SchemeProbe) CanOpen(scheme string) bool {
	scheme = normalizeScheme(scheme)
	if _, ok := p.queryable[scheme]; !ok {
		log.Debugf("scheme %s is not queryable", scheme)
		return false
	}
	_, ok := p.installed[scheme]
	return ok
}

// normalizeScheme accepts "metamask", "metamask:" and "metamask://".
func normalizeScheme(s string) string {
	s = strings.TrimSuffix(s, "//")
	s = strings.TrimSuffix(s, ":")
	return strings.ToLower(s)
}
