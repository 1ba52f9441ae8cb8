package compiler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Parallel compiles multiple binaries concurrently, to keep the startup cost
// of a large acceptance test suite down.
type Parallel struct {
	compiler    *Compiler
	parallelism int

	work []Work
}

func NewParallel(parallelism int) *Parallel {
	if parallelism < 1 {
		parallelism = 2
	}
	return &Parallel{
		compiler:    New(),
		parallelism: parallelism,
	}
}

// Dir is the directory the compiled binaries are written to.
func (p *Parallel) Dir() string {
	return p.compiler.Dir()
}

func (p *Parallel) Cleanup() {
	p.compiler.Cleanup()
}

// Add queues work to be compiled when Run is called.
func (p *Parallel) Add(work Work) {
	mustValidateWork(work)
	p.work = append(p.work, work)
}

// Run compiles all the added work. It returns on the first failed compilation,
// or once everything is built.
func (p *Parallel) Run(ctx context.Context) error {
	workCh := make(chan Work, len(p.work))
	for _, w := range p.work {
		// Skip if this work has already been compiled
		if w.Result != nil && *w.Result != "" {
			continue
		}
		workCh <- w
	}
	close(workCh)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.parallelism; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case w, ok := <-workCh:
					if !ok {
						return nil
					}
					if _, err := p.compiler.Compile(ctx, w); err != nil {
						return fmt.Errorf("compile %q failed: %w", w.Name, err)
					}
				}
			}
		})
	}
	return g.Wait()
}

func mustValidateWork(work Work) {
	if work.Name == "" {
		panic("work has no name")
	}
	if work.Target == "" {
		panic(fmt.Sprintf("work %q has no target", work.Name))
	}
	if work.Source == "" {
		panic(fmt.Sprintf("work %q has no source", work.Name))
	}
}
