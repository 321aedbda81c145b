package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common/logger"
	"github.com/gorustyt/tilenav/common/message"
	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/detour"
	"github.com/gorustyt/tilenav/geom"
	"github.com/gorustyt/tilenav/tilemesh"
	"go.uber.org/zap"
)

const usage = `usage: navbuild <command> [flags]

commands:
  build   build every tile and save the tile set
  tile    rebuild the tile under a world position
  info    print the params and tiles of a tile set
  report  print a build report
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "build":
		err = runBuild(args)
	case "tile":
		err = runTile(args)
	case "info":
		err = runInfo(args)
	case "report":
		err = runReport(args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "navbuild:", err)
		os.Exit(1)
	}
}

// openProject loads the config and geometry and returns a project ready
// to build.
func openProject(configPath string) (*config.Config, *tilemesh.Project, *zap.Logger, error) {
	if configPath == "" {
		return nil, nil, nil, errors.New("missing -config")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := geom.Load(cfg.Geometry)
	if err != nil {
		return nil, nil, log, err
	}
	log.Info("geometry loaded",
		zap.String("mesh", g.Mesh().FileName),
		zap.Int("verts", g.Mesh().VertCount()),
		zap.Int("tris", g.Mesh().TriCount()),
		zap.Int("offMeshConnections", len(g.OffMeshConnections())),
		zap.Int("convexVolumes", len(g.ConvexVolumes())))

	p := tilemesh.NewProject(tilemesh.WithLogger(log), tilemesh.WithWorkers(cfg.Workers))
	if err := p.SetSettings(cfg.Build); err != nil {
		return nil, nil, log, err
	}
	if err := p.SetGeometry(g); err != nil {
		return nil, nil, log, err
	}
	return cfg, p, log, nil
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", "navbuild.yaml", "path to the YAML config")
	out := fs.String("out", "", "tile set output path, overrides the config (.zst compresses)")
	reportPath := fs.String("report", "", "write the build report to this file")
	fs.Parse(args)

	cfg, p, log, err := openProject(*configPath)
	if log != nil {
		defer log.Sync()
	}
	if err != nil {
		return err
	}
	if *out != "" {
		cfg.Output = *out
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if err := p.BuildAll(true); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for p.IsBuilding() {
		select {
		case s := <-sig:
			log.Warn("cancelling build", zap.Stringer("signal", s))
			p.CancelBuildAll(true)
		case <-ticker.C:
			built, total, elapsed := p.Progress()
			log.Info("building", zap.Int("done", built), zap.Int("total", total), zap.Duration("elapsed", elapsed))
		}
	}
	p.CancelBuildAll(true)

	report := p.Report()
	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, message.Encode(report), 0o644); err != nil {
			return fmt.Errorf("%w: %w", tilemesh.ErrIO, err)
		}
	}
	if err := p.SaveMesh(cfg.Output); err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runTile(args []string) error {
	fs := flag.NewFlagSet("tile", flag.ExitOnError)
	configPath := fs.String("config", "navbuild.yaml", "path to the YAML config")
	in := fs.String("in", "", "tile set to update, defaults to the config output")
	x := fs.Float64("x", 0, "world x of the tile")
	z := fs.Float64("z", 0, "world z of the tile")
	remove := fs.Bool("remove", false, "remove the tile instead of rebuilding it")
	fs.Parse(args)

	cfg, p, log, err := openProject(*configPath)
	if log != nil {
		defer log.Sync()
	}
	if err != nil {
		return err
	}
	path := cfg.Output
	if *in != "" {
		path = *in
	}
	if _, err := os.Stat(path); err == nil {
		if err := p.LoadMesh(path); err != nil {
			return err
		}
	}

	pos := mgl32.Vec3{float32(*x), 0, float32(*z)}
	if *remove {
		err = p.RemoveTile(pos)
	} else {
		err = p.BuildTile(pos)
	}
	if err != nil {
		return err
	}
	return p.SaveMesh(path)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "tile set path")
	fs.Parse(args)
	if *in == "" {
		return errors.New("missing -in")
	}

	mesh, err := tilemesh.LoadFile(*in)
	if err != nil {
		return err
	}
	params := mesh.Params()
	fmt.Printf("origin=%v tile=%gx%g maxTiles=%d maxPolys=%d tileBits=%d polyBits=%d\n",
		params.Orig, params.TileWidth, params.TileHeight, params.MaxTiles, params.MaxPolys,
		mesh.TileBits(), mesh.PolyBits())

	tiles := mesh.Tiles()
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i].Coord, tiles[j].Coord
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	var polys, verts int32
	for _, e := range tiles {
		data, err := detour.NavMeshDataFromBin(e.Data)
		if err != nil {
			return fmt.Errorf("tile %v: %w", e.Coord, err)
		}
		h := data.Header
		polys += h.PolyCount
		verts += h.VertCount
		fmt.Printf("tile %-12v ref=%#08x polys=%-5d verts=%-5d offmesh=%-3d bytes=%d\n",
			e.Coord, uint32(e.Ref), h.PolyCount, h.VertCount, h.OffMeshConCount, len(e.Data))
	}
	fmt.Printf("%d tiles, %d polys, %d verts\n", len(tiles), polys, verts)
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "build report path")
	fs.Parse(args)
	if *in == "" {
		return errors.New("missing -in")
	}
	raw, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	report, err := message.Decode(raw)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(r *message.BuildReport) {
	if r == nil {
		return
	}
	fmt.Printf("tiles=%d built=%d empty=%d failed=%d elapsed=%v cancelled=%v\n",
		r.TilesTotal, r.TilesBuilt, r.TilesEmpty, r.TilesFailed, r.Elapsed.Round(time.Millisecond), r.Cancelled)
	for _, f := range r.Failures {
		fmt.Printf("  tile (%d,%d): %s\n", f.X, f.Y, f.Reason)
	}
}
