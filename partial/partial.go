// Package partial loads shared HTML fragments (footer, menu) into placeholder elements of pages.
//
// Page contains empty container element with known id. Loader fetches fragment and replaces container children with
// parsed fragment nodes. When container does not exist nothing is fetched. Failed fetches are logged and leave the
// container untouched.
package partial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aldas/go-canxl-regs/internal/ctxlog"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

var ErrContainerNotFound = errors.New("fragment container element not found")

// Config describes where fragment is loaded from and where it is injected.
type Config struct {
	Name        string
	ContainerID string
	Path        string
	// WarnOnMissing logs warning when page does not have container element
	WarnOnMissing bool
}

// FooterConfig is page footer shared by CAN pages.
func FooterConfig() Config {
	return Config{Name: "footer", ContainerID: "footer", Path: "/can/footer.html", WarnOnMissing: true}
}

// MenuConfig is site navigation menu. Pages without menu are common so missing container is not logged.
func MenuConfig() Config {
	return Config{Name: "menu", ContainerID: "menu", Path: "/menu.html"}
}

type Loader struct {
	config  Config
	fetcher Fetcher
}

func NewLoader(config Config, fetcher Fetcher) *Loader {
	return &Loader{config: config, fetcher: fetcher}
}

func (l *Loader) Config() Config {
	return l.config
}

// Load fetches fragment and injects it into container element of doc. Returns nil when container is missing.
func (l *Loader) Load(ctx context.Context, doc *html.Node) error {
	container := l.findContainer(ctx, doc)
	if container == nil {
		return nil
	}
	body, err := l.fetch(ctx)
	if err != nil {
		return err
	}
	return replaceChildren(container, body)
}

func (l *Loader) findContainer(ctx context.Context, doc *html.Node) *html.Node {
	container := FindByID(doc, l.config.ContainerID)
	if container == nil && l.config.WarnOnMissing {
		ctxlog.FromContext(ctx).Warn("fragment container not found",
			"fragment", l.config.Name, "container", l.config.ContainerID)
	}
	return container
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	body, err := l.fetcher.Fetch(ctx, l.config.Path)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to load fragment",
			"fragment", l.config.Name, "path", l.config.Path, "error", err)
		return nil, err
	}
	return body, nil
}

// Render parses page, injects fragments of all loaders and renders page back to HTML. Fragments are fetched
// concurrently. Fragment failures are logged and do not fail rendering.
func Render(ctx context.Context, src io.Reader, loaders ...*Loader) ([]byte, error) {
	doc, err := html.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	containers := make([]*html.Node, len(loaders))
	bodies := make([][]byte, len(loaders))
	g, gCtx := errgroup.WithContext(ctx)
	for i, l := range loaders {
		containers[i] = l.findContainer(ctx, doc)
		if containers[i] == nil {
			continue
		}
		g.Go(func() error {
			body, err := l.fetch(gCtx)
			if err == nil {
				bodies[i] = body
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, body := range bodies {
		if body == nil {
			continue
		}
		if err := replaceChildren(containers[i], body); err != nil {
			ctxlog.FromContext(ctx).Error("failed to inject fragment", "fragment", loaders[i].config.Name, "error", err)
		}
	}

	buf := new(bytes.Buffer)
	if err := html.Render(buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return buf.Bytes(), nil
}

// Inject replaces children of element with given id with parsed fragment.
func Inject(doc *html.Node, containerID string, fragment []byte) error {
	container := FindByID(doc, containerID)
	if container == nil {
		return fmt.Errorf("%w: #%v", ErrContainerNotFound, containerID)
	}
	return replaceChildren(container, fragment)
}

func replaceChildren(container *html.Node, fragment []byte) error {
	nodes, err := html.ParseFragment(bytes.NewReader(fragment), container)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for c := container.FirstChild; c != nil; c = container.FirstChild {
		container.RemoveChild(c)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return nil
}

// FindByID returns first element (depth-first) with given id attribute or nil.
func FindByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
