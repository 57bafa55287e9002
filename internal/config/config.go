package config

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/andybalholm/deflate"
)

const (
	EnvVarPrefix      = "DEFLATE"
	DefaultConfigFile = "deflate.toml"

	DefaultLevel      = "optimal"
	DefaultFormat     = "raw"
	DefaultBlockType  = "auto"
	DefaultVariant    = "deflate"
	DefaultBufferSize = 128 << 10
	DefaultIterations = 3

	MinBufferSize = 1
	MaxBufferSize = 64 << 20
	MinIterations = 1
	MaxIterations = 1000
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validFormats = map[string]struct{}{
		"raw":  {},
		"gzip": {},
		"zlib": {},
	}

	validVariants = map[string]struct{}{
		"deflate":   {},
		"deflate64": {},
	}

	// ValidCodecs lists the codecs the bench command knows about.
	ValidCodecs = []string{"deflate", "gzip", "zlib", "flate", "zstd", "snappy", "lz4", "brotli"}
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Compress   *TOMLCompress   `toml:"compress"`
	Decompress *TOMLDecompress `toml:"decompress"`
	Bench      *TOMLBench      `toml:"bench"`
}

type TOMLCompress struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	BlockType  string `toml:"block_type"`
	BufferSize int    `toml:"buffer_size"`
	SyncEvery  int64  `toml:"sync_every"`
}

type TOMLDecompress struct {
	// Format may also be "auto", which picks the format from the file
	// name or the first bytes of the stream.
	Format     string `toml:"format"`
	Variant    string `toml:"variant"`
	Strict     *bool  `toml:"strict"`
	BufferSize int    `toml:"buffer_size"`
}

type TOMLBench struct {
	Level      string   `toml:"level"`
	Codecs     []string `toml:"codecs"`
	Iterations int      `toml:"iterations"`
}

type CompressCmd struct {
	Input     string `kong:"arg,help='File to compress, - for stdin',default='-'"`
	Output    string `kong:"help='Output file, - for stdout (default: input name plus extension)',short='o'"`
	Level     string `kong:"help='Compression level: 0-9, none, fastest, optimal or smallest',short='l'"`
	Format    string `kong:"help='Container format: raw, gzip or zlib',short='f'"`
	BlockType string `kong:"help='Force a block type: auto, stored, fixed or dynamic',short='b'"`
	SyncEvery int64  `kong:"help='Emit a sync flush after every N input bytes'"`
	Force     bool   `kong:"help='Overwrite an existing output file'"`
}

type DecompressCmd struct {
	Input   string `kong:"arg,help='File to decompress, - for stdin',default='-'"`
	Output  string `kong:"help='Output file, - for stdout (default: input name without extension)',short='o'"`
	Format  string `kong:"help='Container format: auto, raw, gzip or zlib',short='f'"`
	Variant string `kong:"help='Raw stream variant: deflate or deflate64'"`
	Lenient bool   `kong:"help='Return what was decoded from a truncated stream instead of failing'"`
	Force   bool   `kong:"help='Overwrite an existing output file'"`
}

type InspectCmd struct {
	Input  string `kong:"arg,help='File to inspect, - for stdin',default='-'"`
	Level  string `kong:"help='Compression level used to find matches',short='l'"`
	Finder string `kong:"help='Match finder: deflater or hash',enum='deflater,hash',default='deflater'"`
	Text   bool   `kong:"help='Print the input with matches replaced by <length,distance> markers',short='t'"`
}

type BenchCmd struct {
	Input      string   `kong:"arg,help='File to benchmark with'"`
	Level      string   `kong:"help='Level for the DEFLATE based codecs',short='l'"`
	Codecs     []string `kong:"help='Codecs to compare',short='C'"`
	Iterations int      `kong:"help='Runs per codec',short='i'"`
}

type CLI struct {
	ConfigFile   string `kong:"help='Path to an optional TOML config file',type='path',default='deflate.toml',short='c'"`
	DisableColor bool   `kong:"help='Disable color output'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Quiet   bool             `kong:"help='Disable progress bars and summaries',short='q'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Compress   CompressCmd   `kong:"cmd,help='Compress a file'"`
	Decompress DecompressCmd `kong:"cmd,help='Decompress a raw, gzip or zlib stream'"`
	Inspect    InspectCmd    `kong:"cmd,help='Show the LZ77 matches and blocks chosen for a file'"`
	Bench      BenchCmd      `kong:"cmd,help='Compare this codec with the other codecs in the module'"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

func NewConfig() (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	return newConfig(cli)
}

func newConfig(cli *CLI) (*Config, error) {
	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	applyCLIOverrides(cli, tomlConfig)

	if err := validateTOML(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error validating TOML config")
	}

	return &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}, nil
}

// readTOML reads the config file at path. A missing file is not an error;
// every setting then has its default.
func readTOML(path string) (*TOML, error) {
	t := &TOML{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "unable to read config file '%s'", path)
	default:
		if err := toml.Unmarshal(data, t); err != nil {
			return nil, errors.Wrapf(err, "unable to parse config file '%s'", path)
		}
	}

	if err := setTOMLDefaults(t); err != nil {
		return nil, errors.Wrap(err, "unable to set defaults")
	}

	return t, nil
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Compress == nil {
		t.Compress = &TOMLCompress{}
	}

	if t.Decompress == nil {
		t.Decompress = &TOMLDecompress{}
	}

	if t.Bench == nil {
		t.Bench = &TOMLBench{}
	}

	// Set defaults for [compress]
	if t.Compress.Level == "" {
		t.Compress.Level = DefaultLevel
	}

	if t.Compress.Format == "" {
		t.Compress.Format = DefaultFormat
	}

	if t.Compress.BlockType == "" {
		t.Compress.BlockType = DefaultBlockType
	}

	if t.Compress.BufferSize == 0 {
		t.Compress.BufferSize = DefaultBufferSize
	}

	// Set defaults for [decompress]
	if t.Decompress.Format == "" {
		t.Decompress.Format = "auto"
	}

	if t.Decompress.Variant == "" {
		t.Decompress.Variant = DefaultVariant
	}

	if t.Decompress.Strict == nil {
		strict := true
		t.Decompress.Strict = &strict
	}

	if t.Decompress.BufferSize == 0 {
		t.Decompress.BufferSize = DefaultBufferSize
	}

	// Set defaults for [bench]
	if t.Bench.Level == "" {
		t.Bench.Level = DefaultLevel
	}

	if len(t.Bench.Codecs) == 0 {
		t.Bench.Codecs = ValidCodecs
	}

	if t.Bench.Iterations == 0 {
		t.Bench.Iterations = DefaultIterations
	}

	return nil
}

// applyCLIOverrides copies every flag that was set on the command line over
// the corresponding TOML setting.
func applyCLIOverrides(cli *CLI, t *TOML) {
	if cli == nil || t == nil {
		return
	}

	if cli.Compress.Level != "" {
		t.Compress.Level = cli.Compress.Level
	}

	if cli.Compress.Format != "" {
		t.Compress.Format = cli.Compress.Format
	}

	if cli.Compress.BlockType != "" {
		t.Compress.BlockType = cli.Compress.BlockType
	}

	if cli.Compress.SyncEvery != 0 {
		t.Compress.SyncEvery = cli.Compress.SyncEvery
	}

	if cli.Decompress.Format != "" {
		t.Decompress.Format = cli.Decompress.Format
	}

	if cli.Decompress.Variant != "" {
		t.Decompress.Variant = cli.Decompress.Variant
	}

	if cli.Decompress.Lenient {
		strict := false
		t.Decompress.Strict = &strict
	}

	if cli.Bench.Level != "" {
		t.Bench.Level = cli.Bench.Level
	}

	if len(cli.Bench.Codecs) > 0 {
		t.Bench.Codecs = cli.Bench.Codecs
	}

	if cli.Bench.Iterations != 0 {
		t.Bench.Iterations = cli.Bench.Iterations
	}
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [compress]
	if err := validateTOMLCompress(t.Compress); err != nil {
		return errors.Wrap(err, "compress error(s)")
	}

	// Validate [decompress]
	if err := validateTOMLDecompress(t.Decompress); err != nil {
		return errors.Wrap(err, "decompress error(s)")
	}

	// Validate [bench]
	if err := validateTOMLBench(t.Bench); err != nil {
		return errors.Wrap(err, "bench error(s)")
	}

	return nil
}

func validateTOMLCompress(c *TOMLCompress) error {
	if c == nil {
		return errors.New("compress cannot be empty")
	}

	if _, err := deflate.ParseLevel(c.Level); err != nil {
		return errors.Wrap(err, "compress.level is invalid")
	}

	if _, ok := validFormats[c.Format]; !ok {
		return errors.Errorf("compress.format %s is invalid", c.Format)
	}

	if _, err := deflate.ParseBlockType(c.BlockType); err != nil {
		return errors.Wrap(err, "compress.block_type is invalid")
	}

	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		return errors.Errorf("compress.buffer_size must be between %d and %d", MinBufferSize, MaxBufferSize)
	}

	if c.SyncEvery < 0 {
		return errors.New("compress.sync_every cannot be negative")
	}

	return nil
}

func validateTOMLDecompress(d *TOMLDecompress) error {
	if d == nil {
		return errors.New("decompress cannot be empty")
	}

	if _, ok := validFormats[d.Format]; !ok && d.Format != "auto" {
		return errors.Errorf("decompress.format %s is invalid", d.Format)
	}

	if _, ok := validVariants[d.Variant]; !ok {
		return errors.Errorf("decompress.variant %s is invalid", d.Variant)
	}

	if d.Variant == "deflate64" && d.Format != "raw" && d.Format != "auto" {
		return errors.Errorf("decompress.variant deflate64 cannot be used with format %s", d.Format)
	}

	if d.BufferSize < MinBufferSize || d.BufferSize > MaxBufferSize {
		return errors.Errorf("decompress.buffer_size must be between %d and %d", MinBufferSize, MaxBufferSize)
	}

	return nil
}

func validateTOMLBench(b *TOMLBench) error {
	if b == nil {
		return errors.New("bench cannot be empty")
	}

	if _, err := deflate.ParseLevel(b.Level); err != nil {
		return errors.Wrap(err, "bench.level is invalid")
	}

	for _, name := range b.Codecs {
		if !isValidCodec(name) {
			return errors.Errorf("bench.codecs entry %s is invalid", name)
		}
	}

	if b.Iterations < MinIterations || b.Iterations > MaxIterations {
		return errors.Errorf("bench.iterations must be between %d and %d", MinIterations, MaxIterations)
	}

	return nil
}

func isValidCodec(name string) bool {
	for _, c := range ValidCodecs {
		if c == name {
			return true
		}
	}
	return false
}

// DeflateVariant returns the decoder variant selected by [decompress].
func (d *TOMLDecompress) DeflateVariant() deflate.Variant {
	if d.Variant == "deflate64" {
		return deflate.Deflate64
	}
	return deflate.Standard
}

func readCLIArgs() (*CLI, error) {
	cli := &CLI{}
	cli.Ctx = kong.Parse(cli,
		kong.Name("deflate"),
		kong.Description("DEFLATE, gzip and zlib compression tool"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		},
	)

	return cli, nil
}
