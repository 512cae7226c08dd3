package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-rc/engine"
	"github.com/spaghettifunk/anima-rc/engine/config"
	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/resources"
	"github.com/spaghettifunk/anima-rc/engine/systems"
)

type globalOptions struct {
	settingsPath string
	mainDir      string
	userDir      string
	game         string
	mods         []string
	logLevel     string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.settingsPath, "settings", "", "engine settings file (TOML)")
	f.StringVar(&o.mainDir, "main", "", "installation directory (overrides paths.main)")
	f.StringVar(&o.userDir, "user", "", "user directory (overrides paths.user)")
	f.StringVar(&o.game, "game", "", "game directory name (overrides paths.game)")
	f.StringSliceVar(&o.mods, "mods", nil, "active mods, comma separated (overrides resources.mods)")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
}

func (o *globalOptions) settings(cmd *cobra.Command) (*config.Settings, error) {
	s := config.Default()
	if o.settingsPath != "" {
		var err error
		if s, err = config.Load(o.settingsPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("main") {
		s.Paths.Main = o.mainDir
	}
	if flags.Changed("user") {
		s.Paths.User = o.userDir
	}
	if flags.Changed("game") {
		s.Paths.Game = o.game
	}
	if flags.Changed("mods") {
		s.Resources.Mods = o.mods
	}
	if flags.Changed("log-level") {
		s.Log.Level = o.logLevel
	}
	return s, nil
}

func (o *globalOptions) manager(cmd *cobra.Command) (*systems.SystemManager, error) {
	s, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	return systems.NewSystemManager(s)
}

func newResolveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <type> <uri>",
		Short: "Print the file a URI resolves to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resources.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			sm, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			defer sm.Shutdown()

			path, ext, err := sm.Resolver().Resolve(args[1], rt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t(ext %q)\n", path, ext)
			return nil
		},
	}
}

func newLoadCmd(opts *globalOptions) *cobra.Command {
	var (
		quality string
		alpha   bool
	)
	cmd := &cobra.Command{
		Use:   "load <type> <uri>",
		Short: "Decode a resource and describe it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := systems.ManifestEntry{Type: args[0], URI: args[1], Quality: quality, Alpha: alpha}
			m := &systems.Manifest{Groups: map[string][]systems.ManifestEntry{"cli": {entry}}}

			sm, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			defer sm.Shutdown()

			rs := sm.Resources()
			handles, err := m.LoadGroup(rs, "cli")
			if err != nil {
				return err
			}
			defer systems.ReleaseGroup(rs, handles)

			describe(cmd.OutOrStdout(), rs, handles[0], "")
			printStats(cmd.OutOrStdout(), rs.Stats())
			return nil
		},
	}
	cmd.Flags().StringVar(&quality, "quality", "", "high, medium or low (textures, materials, models)")
	cmd.Flags().BoolVar(&alpha, "alpha", false, "request an alpha channel (textures)")
	return cmd
}

func newModsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mods",
		Short: "List the active mods and their directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sm, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			defer sm.Shutdown()

			out := cmd.OutOrStdout()
			for _, name := range sm.Mods().ActiveMods() {
				fmt.Fprintln(out, name)
			}
			for _, p := range sm.Mods().ActiveModPaths() {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
}

func newPreloadCmd(opts *globalOptions) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "preload <manifest> [group...]",
		Short: "Load preload groups from a YAML manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := systems.LoadManifest(args[0])
			if err != nil {
				return err
			}
			groups := args[1:]
			if len(groups) == 0 {
				groups = m.GroupNames()
			}

			sm, err := opts.manager(cmd)
			if err != nil {
				return err
			}
			defer sm.Shutdown()

			rs := sm.Resources()
			out := cmd.OutOrStdout()
			for _, g := range groups {
				var handles []resources.Handle
				if async {
					type result struct {
						handles []resources.Handle
						err     error
					}
					ch := make(chan result, 1)
					err = m.LoadGroupAsync(sm.Jobs(), rs, g, func(h []resources.Handle, err error) {
						ch <- result{h, err}
					})
					if err == nil {
						r := <-ch
						handles, err = r.handles, r.err
					}
				} else {
					handles, err = m.LoadGroup(rs, g)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d resources\n", g, len(handles))
				defer systems.ReleaseGroup(rs, handles)
			}
			printStats(out, rs.Stats())
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "load each group on the job system")
	return cmd
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		manifest string
		groups   []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print resource files as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			s.Resources.Watch = true

			out := cmd.OutOrStdout()
			e, err := engine.New(&engine.ApplicationConfig{
				Name:     "anima-rc",
				Settings: s,
				Manifest: manifest,
				Groups:   groups,
				OnResourceChanged: func(ev *core.ResourceChangedEvent) {
					fmt.Fprintf(out, "%s\t(%d stale)\n", ev.Path, ev.Stale)
				},
			})
			if err != nil {
				return err
			}
			defer e.Shutdown()
			if err := e.Initialize(); err != nil {
				return err
			}

			// signal channel to capture system calls
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
			defer signal.Stop(sigCh)

			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-sigCh:
					e.Quit()
				case <-done:
				}
			}()

			return e.Run()
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "preload manifest whose groups stay loaded while watching")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "manifest groups to preload (default all)")
	return cmd
}

func describe(w io.Writer, rs *systems.ResourceSystem, h resources.Handle, indent string) {
	hdr, ok := rs.Header(h)
	if !ok {
		fmt.Fprintf(w, "%s%s: stale\n", indent, h)
		return
	}
	fmt.Fprintf(w, "%s%s %s (refs=%d)\n", indent, hdr.Type, hdr.Path, hdr.Refs)
	p, _ := rs.Get(h)
	switch v := p.(type) {
	case *resources.Texture:
		fmt.Fprintf(w, "%s  %dx%d, %d channels, quality %s\n", indent, v.Width, v.Height, v.Channels, v.Options.Quality)
	case *resources.Material:
		fmt.Fprintf(w, "%s  color %.3f,%.3f,%.3f alpha %.3f\n", indent, v.Color.X, v.Color.Y, v.Color.Z, v.Alpha)
		if v.Texture.IsValid() {
			describe(w, rs, v.Texture, indent+"  ")
		}
	case *resources.Model:
		for i, g := range v.Geometry {
			fmt.Fprintf(w, "%s  part %d: %d vertices, %d indices\n", indent, i, len(g.Vertices), len(g.Indices))
			describe(w, rs, v.Materials[i], indent+"    ")
		}
	case *resources.Sound:
		fmt.Fprintf(w, "%s  %s, %d frames at %d Hz, %d channels, %d-bit\n", indent, v.Format, v.Len, v.Freq, v.Channels, v.BitDepth())
	case *resources.Config:
		fmt.Fprintf(w, "%s  sections: %v\n", indent, v.Store.Sections())
	case *resources.Definition:
		fmt.Fprintf(w, "%s  keys: %v\n", indent, v.Store.Keys(""))
	case *resources.Script:
		fmt.Fprintf(w, "%s  %d bytes of script\n", indent, len(v.Text))
	case *resources.Map:
		fmt.Fprintf(w, "%s  %d bytes of map data\n", indent, len(v.Data))
	}
}

func printStats(w io.Writer, s systems.Stats) {
	fmt.Fprintf(w, "hits=%d misses=%d waits=%d failures=%d avg_decode=%.2fms\n",
		s.Hits, s.Misses, s.Waits, s.DecodeFailures, s.AverageDecodeMS)
	for t := resources.ResourceType(0); t < resources.ResourceTypeCount; t++ {
		if s.Live[t] > 0 {
			fmt.Fprintf(w, "  %s: %d live\n", t, s.Live[t])
		}
	}
}
