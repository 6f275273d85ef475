package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Solver and model constants. These are the operational defaults; Load
// lets the environment or a YAML file override the tunable ones.
const (
	DefaultDropPenalty      = int64(1_000_000_000)
	DefaultMaxRideTime      = int64(5000) // seconds in vehicle per ride
	DefaultRestSeconds      = int64(1800)
	DefaultRestMinOffset    = int64(3600)
	DefaultRestMinTail      = int64(3600)
	DefaultSpanCost         = int64(100)
	DefaultSoftDeliveryCost = int64(1000) // per second past the delivery window start
	DefaultDistanceScale    = int64(100)  // OSRM meters x100 -> internal integer units

	StopTimeCommon       = int64(120)
	StopTimeWheelchair   = int64(300)
	StopTimeElectricRamp = int64(300)
)

// Skip holds the debug feature-skip flags. Each one disables a single part
// of the model build, which is how infeasible instances get bisected.
type Skip struct {
	DropPenalties    bool `yaml:"drop_penalties"`
	DistanceDim      bool `yaml:"distance_dimension"`
	TimeDim          bool `yaml:"time_dimension"`
	SeatCapacity     bool `yaml:"seat_capacity"`
	WheelchairCap    bool `yaml:"wheelchair_capacity"`
	PickupDelivery   bool `yaml:"pickup_delivery"`
	MaxRideTime      bool `yaml:"max_ride_time"`
	ShiftContainment bool `yaml:"shift_containment"`
	Compatibility    bool `yaml:"compatibility"`
	Rest             bool `yaml:"rest"`
}

// OSRM holds the road-network service settings.
type OSRM struct {
	BaseURL        string `yaml:"base_url"`
	MatrixEndpoint string `yaml:"matrix_endpoint"`
	MatrixParams   string `yaml:"matrix_params"`
	RouteEndpoint  string `yaml:"route_endpoint"`
	RouteParams    string `yaml:"route_params"`
	BatchSize      int    `yaml:"batch_size"`
	RatePerSecond  int    `yaml:"rate_per_second"`
}

// Config is the single configuration value passed through the program.
type Config struct {
	Port string `yaml:"port"`

	OSRM OSRM `yaml:"osrm"`

	SolveTimeLimit   time.Duration `yaml:"-"`
	SolverSeed       int64         `yaml:"solver_seed"`
	SolverIterations int           `yaml:"solver_iterations"`
	GeometryWorkers  int           `yaml:"geometry_workers"`

	DropPenalty      int64 `yaml:"drop_penalty"`
	MaxRideTime      int64 `yaml:"max_ride_time"`
	RestSeconds      int64 `yaml:"rest_seconds"`
	RestMinOffset    int64 `yaml:"rest_min_offset"`
	RestMinTail      int64 `yaml:"rest_min_tail"`
	SpanCost         int64 `yaml:"span_cost"`
	SoftDeliveryCost int64 `yaml:"soft_delivery_cost"`

	Skip Skip `yaml:"skip"`

	DatabaseURL string `yaml:"-"`
	RedisURL    string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: "8080",
		OSRM: OSRM{
			BaseURL:        "http://localhost:5000",
			MatrixEndpoint: "table/v1/driving",
			MatrixParams:   "annotations=distance,duration",
			RouteEndpoint:  "route/v1/driving",
			RouteParams:    "overview=full",
			BatchSize:      100,
			RatePerSecond:  50,
		},
		SolveTimeLimit:   5 * time.Second,
		SolverSeed:       1,
		GeometryWorkers:  10,
		DropPenalty:      DefaultDropPenalty,
		MaxRideTime:      DefaultMaxRideTime,
		RestSeconds:      DefaultRestSeconds,
		RestMinOffset:    DefaultRestMinOffset,
		RestMinTail:      DefaultRestMinTail,
		SpanCost:         DefaultSpanCost,
		SoftDeliveryCost: DefaultSoftDeliveryCost,
	}
}

// Load builds the Config from defaults, an optional YAML file (CONFIG_FILE)
// and environment variables, in that precedence order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("OSRM_BASE_URL"); v != "" {
		cfg.OSRM.BaseURL = v
	}
	if v := os.Getenv("OSRM_MATRIX_ENDPOINT"); v != "" {
		cfg.OSRM.MatrixEndpoint = v
	}
	if v := os.Getenv("OSRM_MATRIX_PARAMS"); v != "" {
		cfg.OSRM.MatrixParams = v
	}
	if v := os.Getenv("OSRM_ROUTE_ENDPOINT"); v != "" {
		cfg.OSRM.RouteEndpoint = v
	}
	if v := os.Getenv("OSRM_ROUTE_PARAMS"); v != "" {
		cfg.OSRM.RouteParams = v
	}
	if n, ok := envInt("OSRM_BATCH_SIZE"); ok {
		cfg.OSRM.BatchSize = int(n)
	}
	if n, ok := envInt("OSRM_RATE_PER_SECOND"); ok {
		cfg.OSRM.RatePerSecond = int(n)
	}
	if n, ok := envInt("SOLVE_TIME_LIMIT_MS"); ok {
		cfg.SolveTimeLimit = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt("SOLVER_SEED"); ok {
		cfg.SolverSeed = n
	}
	if n, ok := envInt("SOLVER_ITERATIONS"); ok {
		cfg.SolverIterations = int(n)
	}
	if n, ok := envInt("GEOMETRY_WORKERS"); ok {
		cfg.GeometryWorkers = int(n)
	}
	if n, ok := envInt("DROP_PENALTY"); ok {
		cfg.DropPenalty = n
	}
	if n, ok := envInt("MAX_RIDE_TIME"); ok {
		cfg.MaxRideTime = n
	}

	cfg.Skip.DropPenalties = envBool("SKIP_DROP_PENALTIES", cfg.Skip.DropPenalties)
	cfg.Skip.DistanceDim = envBool("SKIP_DISTANCE_DIMENSION", cfg.Skip.DistanceDim)
	cfg.Skip.TimeDim = envBool("SKIP_TIME_DIMENSION", cfg.Skip.TimeDim)
	cfg.Skip.SeatCapacity = envBool("SKIP_SEAT_CAPACITY", cfg.Skip.SeatCapacity)
	cfg.Skip.WheelchairCap = envBool("SKIP_WHEELCHAIR_CAPACITY", cfg.Skip.WheelchairCap)
	cfg.Skip.PickupDelivery = envBool("SKIP_PICKUP_DELIVERY", cfg.Skip.PickupDelivery)
	cfg.Skip.MaxRideTime = envBool("SKIP_MAX_RIDE_TIME", cfg.Skip.MaxRideTime)
	cfg.Skip.ShiftContainment = envBool("SKIP_SHIFT_CONTAINMENT", cfg.Skip.ShiftContainment)
	cfg.Skip.Compatibility = envBool("SKIP_COMPATIBILITY", cfg.Skip.Compatibility)
	cfg.Skip.Rest = envBool("SKIP_REST", cfg.Skip.Rest)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	if cfg.OSRM.BatchSize < 2 {
		return cfg, fmt.Errorf("osrm batch size must be >= 2, got %d", cfg.OSRM.BatchSize)
	}
	if cfg.GeometryWorkers < 1 {
		cfg.GeometryWorkers = 1
	}
	return cfg, nil
}

func envInt(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
