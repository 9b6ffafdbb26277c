// Package adminrpc exposes the read-only/admin-only HTTP surface of
// spec.md §6 (market lookup, resolution and voiding, claim listing, mining
// difficulty) over
// gorilla/mux, grounded on the teacher's apiserver/server routing style
// (makeHandler wrapping typed handlers, route params via mux.Vars).
package adminrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/logger"
	"github.com/KongSwap/kong-sub000/kongd/market"
	"github.com/KongSwap/kong-sub000/kongd/mining"
)

var log = logger.Get(logger.SubsystemTags.RPCS)

const (
	routeParamMarketID = "marketID"
	routeParamUserID    = "userID"
)

// handlerError mirrors the teacher's utils.HandlerError: an HTTP status
// paired with a user-facing message (spec.md §7 "errors are strings").
type handlerError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *handlerError) Error() string { return e.Message }

func newHandlerError(code int, msg string) *handlerError {
	return &handlerError{Code: code, Message: msg}
}

// Server wires the market, mining, and journal engines to HTTP routes. It
// holds no state of its own beyond references to the engines it fronts.
type Server struct {
	Markets *market.Engine
	Mining  *mining.State
	Journal *journal.Journal
	router  *mux.Router
}

// NewServer builds an adminrpc server and registers its routes.
func NewServer(markets *market.Engine, miningState *mining.State, j *journal.Journal) *Server {
	s := &Server{Markets: markets, Mining: miningState, Journal: j, router: mux.NewRouter()}
	s.addRoutes()
	return s
}

// ServeHTTP implements http.Handler, delegating to the internal router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) makeHandler(handler func(routeParams map[string]string, r *http.Request) (interface{}, *handlerError)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, hErr := handler(mux.Vars(r), r)
		if hErr != nil {
			log.Warnf("admin rpc error: %s", hErr.Message)
			w.WriteHeader(hErr.Code)
			sendJSON(w, hErr)
			return
		}
		sendJSON(w, response)
	}
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	fmt.Fprint(w, string(b))
}

func (s *Server) addRoutes() {
	s.router.HandleFunc("/", s.makeHandler(s.healthHandler)).Methods("GET")
	s.router.HandleFunc(fmt.Sprintf("/market/{%s}", routeParamMarketID), s.makeHandler(s.getMarketHandler)).Methods("GET")
	s.router.HandleFunc(fmt.Sprintf("/market/{%s}/resolve", routeParamMarketID), s.makeHandler(s.resolveMarketHandler)).Methods("POST")
	s.router.HandleFunc(fmt.Sprintf("/market/{%s}/void", routeParamMarketID), s.makeHandler(s.voidMarketHandler)).Methods("POST")
	s.router.HandleFunc(fmt.Sprintf("/claims/{%s}", routeParamUserID), s.makeHandler(s.listClaimsHandler)).Methods("GET")
	s.router.HandleFunc("/mining/difficulty", s.makeHandler(s.miningDifficultyHandler)).Methods("GET")
}

func (s *Server) healthHandler(_ map[string]string, _ *http.Request) (interface{}, *handlerError) {
	return map[string]string{"status": "ok"}, nil
}

func (s *Server) getMarketHandler(routeParams map[string]string, _ *http.Request) (interface{}, *handlerError) {
	id, err := parseMarketID(routeParams[routeParamMarketID])
	if err != nil {
		return nil, err
	}
	m, ok := s.Markets.Markets.GetByID(id)
	if !ok {
		return nil, newHandlerError(http.StatusNotFound, "market not found")
	}
	return m, nil
}

type resolveMarketRequest struct {
	WinningOutcomes []int `json:"winning_outcomes"`
}

func (s *Server) resolveMarketHandler(routeParams map[string]string, r *http.Request) (interface{}, *handlerError) {
	id, herr := parseMarketID(routeParams[routeParamMarketID])
	if herr != nil {
		return nil, herr
	}
	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, newHandlerError(http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
	}
	records, err := s.Markets.ResolveViaAdmin(context.Background(), id, req.WinningOutcomes)
	if err != nil {
		return nil, newHandlerError(http.StatusUnprocessableEntity, err.Error())
	}
	return records, nil
}

func (s *Server) voidMarketHandler(routeParams map[string]string, r *http.Request) (interface{}, *handlerError) {
	id, herr := parseMarketID(routeParams[routeParamMarketID])
	if herr != nil {
		return nil, herr
	}
	records, err := s.Markets.VoidMarket(context.Background(), id)
	if err != nil {
		return nil, newHandlerError(http.StatusUnprocessableEntity, err.Error())
	}
	return records, nil
}

func (s *Server) listClaimsHandler(routeParams map[string]string, _ *http.Request) (interface{}, *handlerError) {
	return s.Journal.ListClaims(routeParams[routeParamUserID]), nil
}

func (s *Server) miningDifficultyHandler(_ map[string]string, _ *http.Request) (interface{}, *handlerError) {
	return map[string]uint32{"difficulty": s.Mining.Difficulty()}, nil
}

func parseMarketID(raw string) (uint64, *handlerError) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, newHandlerError(http.StatusUnprocessableEntity, "invalid market id: "+err.Error())
	}
	return id, nil
}
