//go:build !windows && !linux

package platform

import (
	"context"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/uiloop"
)

type otherPlatform struct {
	backend clip.Backend
	viewer  *pseudoViewer
	tray    *logTray
}

func newPlatform(backend clip.Backend, opts Options) (Platform, error) {
	return &otherPlatform{
		backend: backend,
		viewer:  &pseudoViewer{},
		tray:    &logTray{log: opts.Log},
	}, nil
}

func (p *otherPlatform) Name() string         { return p.backend.Name() }
func (p *otherPlatform) Viewer() chain.Viewer { return p.viewer }
func (p *otherPlatform) Tray() Tray           { return p.tray }
func (p *otherPlatform) Events() Events       { return nopEvents{} }

func (p *otherPlatform) Run(ctx context.Context, loop *uiloop.Loop, host Host) error {
	return runPolled(ctx, loop, host, p.backend.Watch())
}
