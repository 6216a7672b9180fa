package web

import (
	"encoding/json"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"net/http"
	"strconv"
	"tiledosm/common"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
	"tiledosm/query"
)

func StartServer(port string, database *query.Database) {
	r := initRouter(database)
	sigolo.Infof("Start server without TLS support on port %s", port)
	err := http.ListenAndServe(":"+port, r)
	sigolo.FatalCheck(err)
}

func StartServerTls(port string, certFile string, keyFile string, database *query.Database) {
	r := initRouter(database)
	sigolo.Infof("Start server with TLS support on port %s", port)
	err := http.ListenAndServeTLS(":"+port, certFile, keyFile, r)
	sigolo.FatalCheck(err)
}

func initRouter(database *query.Database) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/tiles", func(writer http.ResponseWriter, request *http.Request) {
		handleTilesForBound(database, writer, request)
	}).Methods(http.MethodGet).Queries("bbox", "{bbox}")

	r.HandleFunc("/tiles/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}", func(writer http.ResponseWriter, request *http.Request) {
		handleTile(writer, request, database.GetCompleteTile)
	}).Methods(http.MethodGet)

	r.HandleFunc("/routable/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}", func(writer http.ResponseWriter, request *http.Request) {
		handleTile(writer, request, database.GetRoutableTile)
	}).Methods(http.MethodGet)

	r.HandleFunc("/{type:node|way|relation}/{id:-?[0-9]+}", func(writer http.ResponseWriter, request *http.Request) {
		handleEntity(database, writer, request)
	}).Methods(http.MethodGet)

	return r
}

type tileQueryFunc func(tile common.Tile, sink ownIo.Sink) error

// trackingWriter remembers whether the response body has been started. Once it has, the status code can't be changed
// anymore.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (w *trackingWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(data)
}

// outputSink creates the sink for the format requested by the "format" URL parameter. OSM-XML is the default.
func outputSink(writer http.ResponseWriter, request *http.Request) (ownIo.Sink, *ownIo.CollectingSink) {
	if request.URL.Query().Get("format") == "json" {
		writer.Header().Set("Content-Type", "application/json")
		sink := ownIo.NewJsonSink(writer)
		return sink, sink.CollectingSink
	}

	writer.Header().Set("Content-Type", "application/xml")
	sink := ownIo.NewXmlSink(writer)
	return sink, sink.CollectingSink
}

func handleTile(responseWriter http.ResponseWriter, request *http.Request, queryFunc tileQueryFunc) {
	writer := &trackingWriter{ResponseWriter: responseWriter}
	vars := mux.Vars(request)
	tile, err := parseTile(vars["z"], vars["x"], vars["y"])
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}

	sigolo.Infof("Request %s for tile %s", request.URL.Path, tile)

	sink, collectingSink := outputSink(writer, request)
	if tile.Valid() {
		collectingSink.SetBound(tile.Bound())
	}

	err = queryFunc(tile, sink)
	if errors.Is(err, query.ErrInvalidZoom) || errors.Is(err, query.ErrInvalidTile) {
		writeError(writer, http.StatusBadRequest, err)
	} else if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
	}
}

func handleEntity(database *query.Database, responseWriter http.ResponseWriter, request *http.Request) {
	writer := &trackingWriter{ResponseWriter: responseWriter}
	vars := mux.Vars(request)
	kind, err := ownOsm.ParseKind(vars["type"])
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(writer, http.StatusBadRequest, errors.Wrapf(err, "Invalid ID %s", vars["id"]))
		return
	}

	entity, found, err := database.GetEntity(kind, id)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(writer, http.StatusNotFound, errors.Errorf("%s/%d not found", kind, id))
		return
	}

	sink, _ := outputSink(writer, request)
	err = ownIo.AddEntity(sink, entity)
	if err == nil {
		err = sink.Flush()
	}
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
	}
}

func handleTilesForBound(database *query.Database, responseWriter http.ResponseWriter, request *http.Request) {
	writer := &trackingWriter{ResponseWriter: responseWriter}
	bound, err := common.ParseBound(mux.Vars(request)["bbox"])
	if err != nil {
		writeError(writer, http.StatusBadRequest, err)
		return
	}

	tiles := []string{}
	for _, tile := range database.TilesForBound(bound) {
		tiles = append(tiles, tile.String())
	}
	sigolo.Debugf("Found %d tiles with data within %v", len(tiles), bound)

	writer.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(writer).Encode(tiles)
	if err != nil {
		sigolo.Errorf("Error writing tile list: %+v", err)
	}
}

func parseTile(z string, x string, y string) (common.Tile, error) {
	var coordinates [3]uint32
	for i, s := range []string{z, x, y} {
		value, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return common.Tile{}, errors.Wrapf(err, "Invalid tile coordinate %s", s)
		}
		coordinates[i] = uint32(value)
	}
	return common.NewTile(coordinates[1], coordinates[2], coordinates[0]), nil
}

func writeError(writer *trackingWriter, status int, err error) {
	if writer.written {
		sigolo.Errorf("Error after the response has been started, status %d can't be sent: %+v", status, err)
		return
	}

	if status == http.StatusInternalServerError {
		sigolo.Errorf("Error handling request: %+v", err)
	} else {
		sigolo.Debugf("Invalid request: %s", err.Error())
	}

	writer.Header().Set("Content-Type", "text/plain")
	writer.WriteHeader(status)
	_, err = writer.Write([]byte(fmt.Sprintf("%s\n", err.Error())))
	if err != nil {
		sigolo.Errorf("Error writing error response: %+v", err)
	}
}
