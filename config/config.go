package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/gorustyt/tilenav/common/logger"
	"gopkg.in/yaml.v3"
)

// ErrInvalid reports agent or voxel parameters that cannot produce a build.
var ErrInvalid = errors.New("invalid build configuration")

type Partition string

const (
	PartitionWatershed Partition = "watershed"
	PartitionMonotone  Partition = "monotone"
	PartitionLayers    Partition = "layers"
)

// Max number of vertices per navigation polygon supported by the tile format.
const MaxVertsPerPoly = 6

type BuildSettings struct {
	// Cell size in world units
	CellSize float32 `yaml:"cell_size"`
	// Cell height in world units
	CellHeight float32 `yaml:"cell_height"`
	// Agent height in world units
	AgentHeight float32 `yaml:"agent_height"`
	// Agent radius in world units
	AgentRadius float32 `yaml:"agent_radius"`
	// Agent max climb in world units
	AgentMaxClimb float32 `yaml:"agent_max_climb"`
	// Agent max slope in degrees
	AgentMaxSlope float32 `yaml:"agent_max_slope"`
	// Region minimum size in voxels.
	// regionMinSize = sqrt(regionMinArea)
	RegionMinSize float32 `yaml:"region_min_size"`
	// Region merge size in voxels.
	// regionMergeSize = sqrt(regionMergeArea)
	RegionMergeSize float32 `yaml:"region_merge_size"`
	// Edge max length in world units
	EdgeMaxLen float32 `yaml:"edge_max_len"`
	// Edge max error in voxels
	EdgeMaxError float32 `yaml:"edge_max_error"`
	VertsPerPoly int     `yaml:"verts_per_poly"`
	// Detail sample distance in voxels
	DetailSampleDist float32 `yaml:"detail_sample_dist"`
	// Detail sample max error in voxel heights.
	DetailSampleMaxError float32 `yaml:"detail_sample_max_error"`
	// Size of the tiles in voxels
	TileSize  int       `yaml:"tile_size"`
	Partition Partition `yaml:"partition"`

	FilterLowHangingObstacles    bool `yaml:"filter_low_hanging_obstacles"`
	FilterLedgeSpans             bool `yaml:"filter_ledge_spans"`
	FilterWalkableLowHeightSpans bool `yaml:"filter_walkable_low_height_spans"`
}

func DefaultBuildSettings() BuildSettings {
	return BuildSettings{
		CellSize:                     0.3,
		CellHeight:                   0.2,
		AgentHeight:                  2.0,
		AgentRadius:                  0.6,
		AgentMaxClimb:                0.9,
		AgentMaxSlope:                45,
		RegionMinSize:                8,
		RegionMergeSize:              20,
		EdgeMaxLen:                   12,
		EdgeMaxError:                 1.3,
		VertsPerPoly:                 6,
		DetailSampleDist:             6,
		DetailSampleMaxError:         1,
		TileSize:                     32,
		Partition:                    PartitionWatershed,
		FilterLowHangingObstacles:    true,
		FilterLedgeSpans:             true,
		FilterWalkableLowHeightSpans: true,
	}
}

// Validate checks that every distance is strictly positive and the
// enumerations are known.
func (s BuildSettings) Validate() error {
	positive := []struct {
		name string
		v    float32
	}{
		{"cell_size", s.CellSize},
		{"cell_height", s.CellHeight},
		{"agent_height", s.AgentHeight},
		{"agent_radius", s.AgentRadius},
		{"agent_max_climb", s.AgentMaxClimb},
		{"agent_max_slope", s.AgentMaxSlope},
		{"edge_max_len", s.EdgeMaxLen},
		{"edge_max_error", s.EdgeMaxError},
		{"detail_sample_max_error", s.DetailSampleMaxError},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalid, p.name, p.v)
		}
	}
	if s.RegionMinSize < 0 || s.RegionMergeSize < 0 || s.DetailSampleDist < 0 {
		return fmt.Errorf("%w: region and detail sizes must not be negative", ErrInvalid)
	}
	if s.AgentMaxSlope >= 90 {
		return fmt.Errorf("%w: agent_max_slope must be below 90 degrees", ErrInvalid)
	}
	if s.TileSize <= 0 {
		return fmt.Errorf("%w: tile_size must be > 0, got %d", ErrInvalid, s.TileSize)
	}
	if s.VertsPerPoly < 3 || s.VertsPerPoly > MaxVertsPerPoly {
		return fmt.Errorf("%w: verts_per_poly must be in [3,%d], got %d", ErrInvalid, MaxVertsPerPoly, s.VertsPerPoly)
	}
	switch s.Partition {
	case PartitionWatershed, PartitionMonotone, PartitionLayers:
	default:
		return fmt.Errorf("%w: unknown partition %q", ErrInvalid, s.Partition)
	}
	return nil
}

type OffMeshConnection struct {
	Start  [3]float32 `yaml:"start"`
	End    [3]float32 `yaml:"end"`
	Radius float32    `yaml:"radius"`
	Bidir  bool       `yaml:"bidir"`
	Area   string     `yaml:"area"`
}

type ConvexVolume struct {
	Verts [][3]float32 `yaml:"verts"`
	HMin  float32      `yaml:"hmin"`
	HMax  float32      `yaml:"hmax"`
	Area  string       `yaml:"area"`
}

type GeometryConfig struct {
	Mesh  string  `yaml:"mesh"`
	Scale float32 `yaml:"scale"`
	// Optional override of the area to mesh; defaults to the mesh bounds.
	NavBoundsMin       *[3]float32         `yaml:"nav_bounds_min"`
	NavBoundsMax       *[3]float32         `yaml:"nav_bounds_max"`
	OffMeshConnections []OffMeshConnection `yaml:"off_mesh_connections"`
	ConvexVolumes      []ConvexVolume      `yaml:"convex_volumes"`
}

type Config struct {
	Geometry GeometryConfig `yaml:"geometry"`
	Build    BuildSettings  `yaml:"build"`
	Workers  int            `yaml:"workers"`
	Output   string         `yaml:"output"`
	Log      logger.Config  `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Geometry: GeometryConfig{Scale: 1},
		Build:    DefaultBuildSettings(),
		Workers:  runtime.GOMAXPROCS(0),
		Output:   "all_tiles_navmesh.bin",
		Log:      logger.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("navbuild config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Build.Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalid, c.Workers)
	}
	if c.Geometry.Scale <= 0 {
		return fmt.Errorf("%w: geometry.scale must be > 0", ErrInvalid)
	}
	if (c.Geometry.NavBoundsMin == nil) != (c.Geometry.NavBoundsMax == nil) {
		return fmt.Errorf("%w: nav_bounds_min and nav_bounds_max must be set together", ErrInvalid)
	}
	for i, v := range c.Geometry.ConvexVolumes {
		if len(v.Verts) < 3 {
			return fmt.Errorf("%w: convex volume %d needs at least 3 vertices", ErrInvalid, i)
		}
	}
	return nil
}
