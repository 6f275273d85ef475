package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"paraplan/internal/config"
	"paraplan/internal/model"
)

// fakeRoads serves both OSRM endpoints: table metrics derived from the
// coordinates (|dLat|+|dLon| units of 1000 m at 10 m/s) and a fixed route
// geometry.
func fakeRoads(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/table/v1/driving/"):
			coords := parseTestCoords(strings.TrimPrefix(r.URL.Path, "/table/v1/driving/"))
			n := len(coords)
			distances := make([][]*float64, n)
			durations := make([][]*float64, n)
			for i := range coords {
				distances[i] = make([]*float64, n)
				durations[i] = make([]*float64, n)
				for j := range coords {
					d := (abs(coords[i][0]-coords[j][0]) + abs(coords[i][1]-coords[j][1])) * 1000
					dur := d / 10
					distances[i][j] = &d
					durations[i][j] = &dur
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "Ok", "distances": distances, "durations": durations})
		case strings.HasPrefix(r.URL.Path, "/route/v1/driving/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":   "Ok",
				"routes": []map[string]any{{"geometry": "_p~iF~ps|U_ulLnnqC_mqNvxq`@"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func parseTestCoords(raw string) [][2]float64 {
	var out [][2]float64
	for _, part := range strings.Split(raw, ";") {
		fields := strings.Split(part, ",")
		lon, _ := strconv.ParseFloat(fields[0], 64)
		lat, _ := strconv.ParseFloat(fields[1], 64)
		out = append(out, [2]float64{lon, lat})
	}
	return out
}

func newTestServer(t *testing.T, osrmURL string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.OSRM.BaseURL = osrmURL
	cfg.SolverSeed = 7
	cfg.SolverIterations = 200
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

const solveBody = `{
  "vehicles": [{
    "id": "v1",
    "seat_capacity": 4,
    "time_window": {"start": "00:00:00", "end": "08:00:00"},
    "depot_start": {"id": "dep", "coordinates": {"latitude": 0, "longitude": 0}},
    "depot_end": {"id": "dep", "coordinates": {"latitude": 0, "longitude": 0}}
  }],
  "ride_requests": [{
    "id": "r1",
    "user_id": "u1",
    "has_companion": false,
    "wheelchair_required": false,
    "direction": "going",
    "pickup": {"coordinates": {"latitude": 1, "longitude": 0}},
    "delivery": {"coordinates": {"latitude": 2, "longitude": 0}}
  }]
}`

func postSolve(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/optimization/v1/solve", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	return rr
}

func TestSolveEndpoint(t *testing.T) {
	roads := fakeRoads(t)
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := postSolve(t, s, solveBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String())
	}
	var solution model.Solution
	if err := json.Unmarshal(rr.Body.Bytes(), &solution); err != nil {
		t.Fatalf("decode solution: %v", err)
	}
	if solution.ErrorMessage != "" {
		t.Fatalf("error message: %q", solution.ErrorMessage)
	}
	if len(solution.DroppedRides) != 0 {
		t.Fatalf("dropped rides: %v", solution.DroppedRides)
	}
	if len(solution.Routes) != 1 {
		t.Fatalf("routes: got %d", len(solution.Routes))
	}
	route := solution.Routes[0]
	if route.VehicleID != "v1" || len(route.Visits) != 4 {
		t.Fatalf("route shape: vehicle=%s visits=%d", route.VehicleID, len(route.Visits))
	}
	if len(route.Geometry) == 0 {
		t.Fatal("route geometry missing")
	}
}

func TestSolveEndpointValidation(t *testing.T) {
	roads := fakeRoads(t)
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := postSolve(t, s, `{"vehicles": [], "ride_requests": []}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty fleet: got %d", rr.Code)
	}
	var problem Problem
	_ = json.Unmarshal(rr.Body.Bytes(), &problem)
	if problem.Type != string(model.ErrInvalidInput) {
		t.Fatalf("problem type: got %q", problem.Type)
	}

	rr = postSolve(t, s, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got %d", rr.Code)
	}

	inverted := strings.Replace(solveBody, `"end": "08:00:00"`, `"end": "00:00:00"`, 1)
	inverted = strings.Replace(inverted, `"start": "00:00:00"`, `"start": "01:00:00"`, 1)
	rr = postSolve(t, s, inverted)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("inverted window: got %d", rr.Code)
	}
}

func TestSolveEndpointMatrixFailure(t *testing.T) {
	roads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "NoTable"})
	}))
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := postSolve(t, s, solveBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("matrix failure must keep the legacy 200, got %d", rr.Code)
	}
	var solution model.Solution
	if err := json.Unmarshal(rr.Body.Bytes(), &solution); err != nil {
		t.Fatalf("decode solution: %v", err)
	}
	if solution.ErrorMessage == "" {
		t.Fatal("error_message must be populated")
	}
	if len(solution.Routes) != 0 {
		t.Fatalf("routes: got %d", len(solution.Routes))
	}
	if len(solution.DroppedRides) != 1 || solution.DroppedRides[0] != "r1" {
		t.Fatalf("dropped rides: %v", solution.DroppedRides)
	}
}

func TestSolveEndpointGeometryFailure(t *testing.T) {
	roads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/table/v1/driving/") {
			coords := parseTestCoords(strings.TrimPrefix(r.URL.Path, "/table/v1/driving/"))
			n := len(coords)
			distances := make([][]*float64, n)
			durations := make([][]*float64, n)
			for i := range coords {
				distances[i] = make([]*float64, n)
				durations[i] = make([]*float64, n)
				for j := range coords {
					d := (abs(coords[i][0]-coords[j][0]) + abs(coords[i][1]-coords[j][1])) * 1000
					dur := d / 10
					distances[i][j] = &d
					durations[i][j] = &dur
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "Ok", "distances": distances, "durations": durations})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "InvalidUrl"})
	}))
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := postSolve(t, s, solveBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("geometry failure must keep the legacy 200, got %d", rr.Code)
	}
	var solution model.Solution
	_ = json.Unmarshal(rr.Body.Bytes(), &solution)
	if solution.ErrorMessage == "" {
		t.Fatal("error_message must be populated")
	}
}

func TestSolveHistoryEndpoints(t *testing.T) {
	roads := fakeRoads(t)
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	if rr := postSolve(t, s, solveBody); rr.Code != http.StatusOK {
		t.Fatalf("solve: got %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	s.SolvesHandler(rr, httptest.NewRequest(http.MethodGet, "/optimization/v1/solves", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list solves: got %d", rr.Code)
	}
	var list struct {
		Items []struct {
			ID           string `json:"id"`
			Rides        int    `json:"rides"`
			DroppedRides int    `json:"dropped_rides"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Rides != 1 || list.Items[0].DroppedRides != 0 {
		t.Fatalf("list items: %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/optimization/v1/solves/"+list.Items[0].ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get solve: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/optimization/v1/solves/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing solve: got %d", rr.Code)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	roads := fakeRoads(t)
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := httptest.NewRecorder()
	body := []byte(`{"url":"https://dispatch.example/hooks","events":["solve.completed"],"secret":"shh"}`)
	req := httptest.NewRequest(http.MethodPost, "/optimization/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create subscription: got %d", rr.Code)
	}
	var sub struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.ID == "" {
		t.Fatal("subscription id missing")
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/optimization/v1/subscriptions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list subscriptions: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/optimization/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete subscription: got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	roads := fakeRoads(t)
	defer roads.Close()
	s := newTestServer(t, roads.URL)

	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("ready: got %d", rr.Code)
	}
}
