package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"visiond/internal/app"
	"visiond/pkg/types"
)

func newModelsCmd(c *cli) *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Inspect and manage the model cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: status|download|delete")
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show local and remote state of every model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), c, func(a *app.App) error {
				resp, err := a.Models(cmd.Context())
				if err != nil {
					return err
				}
				printModels(c.out, resp)
				return nil
			})
		},
	}

	download := &cobra.Command{
		Use:     "download [keys...]",
		Short:   "Download and cache models (all registry keys when none given)",
		Example: "  visiond models download depth object-detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), c, func(a *app.App) error {
				bars := newBarSink(c.out)
				a.Progress().AddSink(bars)
				keys, err := a.DownloadModels(cmd.Context(), args)
				bars.Wait()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "cached %d model(s)\n", len(keys))
				return nil
			})
		},
	}

	var all bool
	del := &cobra.Command{
		Use:     "delete [key]",
		Short:   "Delete one cached model, or every model with --all",
		Example: "  visiond models delete depth\n  visiond models delete --all",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give exactly one of a model key or --all")
			}
			return withApp(cmd.Context(), c, func(a *app.App) error {
				if all {
					if err := a.DeleteAllModels(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(c.out, "deleted every cached model")
					return nil
				}
				if err := a.DeleteModel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "deleted %s\n", args[0])
				return nil
			})
		},
	}
	del.Flags().BoolVar(&all, "all", false, "Delete every cached model")

	models.AddCommand(status, download, del)
	return models
}

func withApp(ctx context.Context, c *cli, fn func(*app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// One-shot commands expose no /metrics endpoint.
	a, err := app.New(ctx, c.cfg, app.WithLogger(c.log), app.WithRegisterer(nil))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printModels(w io.Writer, resp types.ModelsResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLOCAL\tREMOTE\tSTALE")
	for _, m := range resp.Models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", m.Key, m.Local, m.Remote, m.Stale)
	}
	tw.Flush()

	services := make([]string, 0, len(resp.Services))
	for s := range resp.Services {
		services = append(services, s)
	}
	sort.Strings(services)
	fmt.Fprintln(w)
	for _, s := range services {
		state := "missing models"
		if resp.Services[s] {
			state = "ready"
		}
		fmt.Fprintf(w, "%-12s %s\n", s, state)
	}
}

// barSink renders downloader progress as one bar per model. Bars are added
// on the first update of a key; caching completes a bar, failure aborts it.
type barSink struct {
	p *mpb.Progress

	mu   sync.Mutex
	bars map[string]*mpb.Bar
	done map[string]bool
}

func newBarSink(w io.Writer) *barSink {
	return &barSink{
		p: mpb.New(
			mpb.WithOutput(w),
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
		bars: make(map[string]*mpb.Bar),
		done: make(map[string]bool),
	}
}

// bar returns the bar of key, or nil once that bar finished.
func (s *barSink) bar(key string, final bool) *mpb.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done[key] {
		return nil
	}
	if final {
		s.done[key] = true
	}
	if b, ok := s.bars[key]; ok {
		return b
	}
	b := s.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(key, decor.WC{W: 20, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "cached"),
		),
	)
	s.bars[key] = b
	return b
}

func (s *barSink) Update(key string, p types.DownloadProgress) {
	failed := p.CachingStatus == types.CachingError || p.DownloadPercent < 0
	b := s.bar(key, failed || p.CachingStatus == types.CachingDone)
	if b == nil {
		return
	}
	switch {
	case failed:
		b.Abort(false)
	case p.CachingStatus == types.CachingDone:
		b.SetCurrent(100)
	default:
		// Hold the bar short of complete until the archive is cached.
		cur := int64(p.DownloadPercent)
		if cur > 99 {
			cur = 99
		}
		b.SetCurrent(cur)
	}
}

// Wait aborts the bars of keys that never reached a final state and blocks
// until rendering stops. Call it after the batch returned.
func (s *barSink) Wait() {
	s.mu.Lock()
	for key, b := range s.bars {
		if !s.done[key] {
			s.done[key] = true
			b.Abort(false)
		}
	}
	s.mu.Unlock()
	s.p.Wait()
}
