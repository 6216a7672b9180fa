package main

import (
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"io"
	"os"
	"tiledosm/common"
	"tiledosm/config"
	"tiledosm/importing"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
	"tiledosm/query"
	"tiledosm/util"
	"tiledosm/web"
)

const VERSION = "v0.1.0"

var cli struct {
	Config   string      `help:"YAML config file. Flags override the values of this file." short:"c" type:"existingfile"`
	Logging  string      `help:"Logging verbosity (info, debug, trace)." short:"l"`
	BasePath string      `help:"Folder containing the tiles." name:"base-path" short:"b"`
	Zoom     uint32      `help:"Zoom level of the leaf tiles. Must be even." short:"z"`
	Version  VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Build    struct {
		Input       string `help:"The input file. Either .osm or .osm.pbf or - to read from stdin. Entities must be sorted by type and ID." placeholder:"<input-file>" arg:""`
		StdinFormat string `help:"Format of the data read from stdin." enum:"pbf,xml" default:"pbf" name:"stdin-format"`
	} `cmd:"" help:"Splits the given OSM file into tiles."`
	Tile struct {
		Z        uint32 `arg:"" help:"Zoom level of the tile."`
		X        uint32 `arg:"" help:"X coordinate of the tile."`
		Y        uint32 `arg:"" help:"Y coordinate of the tile."`
		Routable bool   `help:"Only keep the parts of the ways within the tile plus one node on each side."`
		Format   string `help:"Output format." enum:"xml,json" default:"xml" short:"f"`
	} `cmd:"" help:"Writes all data of the given tile to stdout."`
	Get struct {
		Type   string `arg:"" help:"Type of the entity: node, way or relation."`
		Id     int64  `arg:"" help:"ID of the entity."`
		Format string `help:"Output format." enum:"xml,json" default:"xml" short:"f"`
	} `cmd:"" help:"Writes the given entity to stdout."`
	Tiles struct {
		Bbox string `arg:"" help:"Bounding box in the format minLon,minLat,maxLon,maxLat."`
	} `cmd:"" help:"Lists all tiles with data within the bounding box."`
	Serve struct {
		Port string `help:"Port of the HTTP server." short:"p"`
	} `cmd:"" help:"Starts an HTTP server answering tile and entity requests."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("tiledosm"),
		kong.Description("A tiled database for OSM data."),
		kong.Vars{
			"version": VERSION,
		},
	)

	cfg := loadConfig()

	if !util.ApplyLogLevel(cfg.Logging) {
		sigolo.Fatalf("Unknown logging level '%s'", cfg.Logging)
	}

	err := cfg.Validate()
	sigolo.FatalCheck(err)

	switch ctx.Command() {
	case "build <input>":
		err = build(cfg, cli.Build.Input, cli.Build.StdinFormat)
		sigolo.FatalCheck(err)
	case "tile <z> <x> <y>":
		database := openDatabase(cfg)
		defer database.Close()

		tile := common.NewTile(cli.Tile.X, cli.Tile.Y, cli.Tile.Z)
		sink := newSink(cli.Tile.Format, os.Stdout)
		if cli.Tile.Routable {
			err = database.GetRoutableTile(tile, sink)
		} else {
			err = database.GetCompleteTile(tile, sink)
		}
		sigolo.FatalCheck(err)
	case "get <type> <id>":
		database := openDatabase(cfg)
		defer database.Close()

		err = get(database, cli.Get.Type, cli.Get.Id, cli.Get.Format)
		sigolo.FatalCheck(err)
	case "tiles <bbox>":
		database := openDatabase(cfg)
		defer database.Close()

		bound, err := common.ParseBound(cli.Tiles.Bbox)
		sigolo.FatalCheck(err)
		for _, tile := range database.TilesForBound(bound) {
			fmt.Println(tile)
		}
	case "serve":
		database := openDatabase(cfg)
		defer database.Close()

		if cfg.Server.CertFile != "" {
			web.StartServerTls(cfg.Server.Port, cfg.Server.CertFile, cfg.Server.KeyFile, database)
		} else {
			web.StartServer(cfg.Server.Port, database)
		}
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

// loadConfig reads the config file (if given) and applies the global flags on top of it.
func loadConfig() *config.Config {
	cfg := config.Default()
	if cli.Config != "" {
		var err error
		cfg, err = config.Load(cli.Config)
		sigolo.FatalCheck(err)
	}

	if cli.Logging != "" {
		cfg.Logging = cli.Logging
	}
	if cli.BasePath != "" {
		cfg.BasePath = cli.BasePath
	}
	if cli.Zoom != 0 {
		cfg.Zoom = cli.Zoom
	}
	if cli.Serve.Port != "" {
		cfg.Server.Port = cli.Serve.Port
	}

	return cfg
}

func build(cfg *config.Config, inputFile string, stdinFormat string) error {
	err := os.MkdirAll(cfg.BasePath, os.ModePerm)
	if err != nil {
		return errors.Wrapf(err, "Unable to create base path %s", cfg.BasePath)
	}

	var source ownOsm.Source
	if inputFile == "-" {
		sigolo.Infof("Read %s data from stdin", stdinFormat)
		source = ownOsm.NewStreamSource(os.Stdin, stdinFormat == "pbf", cfg.Build.ReaderProcs)
	} else {
		source, err = ownOsm.OpenFile(inputFile, cfg.Build.ReaderProcs)
		if err != nil {
			return err
		}
	}
	defer source.Close()

	stats, err := importing.Build(source, cfg.BasePath, cfg.ImportConfig())
	if err != nil {
		return err
	}

	sigolo.Infof("Built %d leaf tiles in %d levels", stats.LeafTiles, stats.Levels)
	return nil
}

func get(database *query.Database, entityType string, id int64, format string) error {
	kind, err := ownOsm.ParseKind(entityType)
	if err != nil {
		return err
	}

	entity, found, err := database.GetEntity(kind, id)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("%s/%d not found", kind, id)
	}

	sink := newSink(format, os.Stdout)
	err = ownIo.AddEntity(sink, entity)
	if err != nil {
		return err
	}
	return sink.Flush()
}

func openDatabase(cfg *config.Config) *query.Database {
	database, err := query.Open(cfg.BasePath, cfg.Zoom, cfg.QueryOptions())
	sigolo.FatalCheck(err)
	return database
}

func newSink(format string, writer io.Writer) ownIo.Sink {
	if format == "json" {
		return ownIo.NewJsonSink(writer)
	}
	return ownIo.NewXmlSink(writer)
}
