package web

import (
	"encoding/json"
	"github.com/gorilla/mux"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"tiledosm/common"
	"tiledosm/importing"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
	"tiledosm/query"
	"tiledosm/util"
)

func newTestRouter(t *testing.T) http.Handler {
	source := ownOsm.NewSliceSource(
		ownOsm.NodeEntity(&osm.Node{ID: 1, Lat: 53.55, Lon: 9.99}),
		ownOsm.NodeEntity(&osm.Node{ID: 2, Lat: 40.70, Lon: -74.00}),
		ownOsm.WayEntity(&osm.Way{ID: 10, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}}),
	)

	basePath := t.TempDir()
	_, err := importing.Build(source, basePath, importing.BuildConfig{MaxZoom: 2, Workers: 1, IndexWriters: 1})
	util.Must(t, err)

	database, err := query.Open(basePath, 2, query.Options{})
	util.Must(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	return initRouter(database)
}

func get(handler http.Handler, url string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, url, nil))
	return recorder
}

func TestApi_completeTile(t *testing.T) {
	// Arrange
	router := newTestRouter(t)

	// Act
	response := get(router, "/tiles/2/2/1")

	// Assert
	util.AssertEqual(t, http.StatusOK, response.Code)
	util.AssertEqual(t, "application/xml", response.Header().Get("Content-Type"))
	body := response.Body.String()
	util.AssertTrue(t, strings.Contains(body, `<node id="1"`))
	util.AssertTrue(t, strings.Contains(body, `<node id="2"`))
	util.AssertTrue(t, strings.Contains(body, `<way id="10"`))
}

func TestApi_routableTileAsJson(t *testing.T) {
	// Arrange
	router := newTestRouter(t)

	// Act
	response := get(router, "/routable/2/1/1?format=json")

	// Assert
	util.AssertEqual(t, http.StatusOK, response.Code)
	util.AssertEqual(t, "application/json", response.Header().Get("Content-Type"))

	var document struct {
		Elements []struct {
			Type string `json:"type"`
		} `json:"elements"`
	}
	util.Must(t, json.Unmarshal(response.Body.Bytes(), &document))
	util.AssertEqual(t, 3, len(document.Elements))
}

func TestApi_entity(t *testing.T) {
	router := newTestRouter(t)

	response := get(router, "/way/10")
	util.AssertEqual(t, http.StatusOK, response.Code)
	util.AssertTrue(t, strings.Contains(response.Body.String(), `<way id="10"`))

	response = get(router, "/node/404")
	util.AssertEqual(t, http.StatusNotFound, response.Code)
}

func TestApi_invalidRequests(t *testing.T) {
	router := newTestRouter(t)

	util.AssertEqual(t, http.StatusBadRequest, get(router, "/tiles/4/2/1").Code)
	util.AssertEqual(t, http.StatusBadRequest, get(router, "/tiles/2/9/1").Code)
	util.AssertEqual(t, http.StatusBadRequest, get(router, "/tiles?bbox=1,2,3").Code)
	util.AssertEqual(t, http.StatusNotFound, get(router, "/changeset/1").Code)
}

func TestApi_tilesForBound(t *testing.T) {
	// Arrange
	router := newTestRouter(t)

	// Act
	response := get(router, "/tiles?bbox=-180,-85,180,85")

	// Assert
	util.AssertEqual(t, http.StatusOK, response.Code)
	var tiles []string
	util.Must(t, json.Unmarshal(response.Body.Bytes(), &tiles))
	util.AssertEqual(t, []string{"2/1/1", "2/2/1"}, tiles)
}

func TestHandleTile_errorAfterOutputStarted(t *testing.T) {
	// Arrange
	recorder := httptest.NewRecorder()
	request := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/tiles/2/2/1", nil), map[string]string{"z": "2", "x": "2", "y": "1"})
	queryFunc := func(tile common.Tile, sink ownIo.Sink) error {
		util.Must(t, sink.AddNode(&osm.Node{ID: 1, Visible: true}))
		util.Must(t, sink.Flush())
		return errors.New("connection lost")
	}

	// Act
	handleTile(recorder, request, queryFunc)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	util.AssertTrue(t, strings.Contains(body, `<node id="1"`))
	util.AssertFalse(t, strings.Contains(body, "connection lost"))
}

func TestHandleTile_errorBeforeOutput(t *testing.T) {
	// Arrange
	recorder := httptest.NewRecorder()
	request := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/tiles/2/2/1", nil), map[string]string{"z": "2", "x": "2", "y": "1"})
	queryFunc := func(tile common.Tile, sink ownIo.Sink) error {
		return errors.New("broken index")
	}

	// Act
	handleTile(recorder, request, queryFunc)

	// Assert
	util.AssertEqual(t, http.StatusInternalServerError, recorder.Code)
	util.AssertTrue(t, strings.Contains(recorder.Body.String(), "broken index"))
}
