/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// go-fusion API
//
// RESTful APIs to interact with the go-fusion capture server
//
// Terms Of Service:
//
//     Schemes: http
//     Host: localhost:8000
//     Version: 1.0.0
//     Contact:
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
// swagger:meta
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/log"
	"navlab.io/gnss/go-fusion/pkg/messages"
)

const (
	ApiPort = 8000
)

// Success response
// swagger:response okResp
type RespOk struct {
	// in:body
	Body struct {
		// HTTP status code 200 - OK
		Code int `json:"code"`
	}
} // Error Bad Request
// swagger:response badReq
type ReqBadRequest struct {
	// in:body
	Body struct {
		// HTTP status code 400 -  Bad Request
		Code int `json:"code"`
	}
}

type Record struct {
	Dir        string
	FilePrefix string
}

type ResetRequest struct {
	Level string `json:"level"`
}

var resetMasks = map[string]uint32{
	"navigation":  messages.ResetRestartNavigationEngine,
	"corrections": messages.ResetGNSSCorrections,
	"hot":         messages.ResetHotStart,
	"warm":        messages.ResetWarmStart,
	"cold":        messages.ResetColdStart,
	"factory":     messages.ResetFactory,
}

type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	capture *CaptureServer
	spec    *loads.Document
}

func NewApiServer(ctx context.Context, cfg *config.Config, capture *CaptureServer) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s port: %d", cfg.IP, ApiPort)

	spec, err := loads.Analyzed(json.RawMessage(swaggerJSON), "2.0")
	if err != nil {
		return nil, err
	}

	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		capture: capture,
		spec:    spec,
	}
	return s, nil
}

// Start
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s port: %d", s.Config.IP, ApiPort)
	s.configureRouter()
	handler := handlers.RecoveryHandler()(
		handlers.LoggingHandler(os.Stdout,
			handlers.CORS(
				handlers.AllowedOrigins([]string{"*"}),
				handlers.AllowedMethods([]string{"GET", "POST"}),
			)(s.Router)))
	httpServer := &http.Server{
		Handler: handler,
		Addr:    fmt.Sprintf("%s:%d", s.Config.IP, ApiPort),
	}
	return httpServer.ListenAndServe()
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	// swagger:operation GET /receivers receivers getReceivers
	// ---
	// summary: Return the list of configured receivers
	// description: Name, transport, address and port of every receiver the server captures from.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/receivers", s.handleReceivers()).Methods("GET")
	// swagger:operation GET /stats stats getStats
	// ---
	// summary: Return per-receiver stream statistics
	// description: Message and byte counters, RTCM counters and sequence gaps for every receiver.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/stats", s.handleStats()).Methods("GET")
	subRouter.HandleFunc("/stats/{receiver}", s.handleReceiverStats()).Methods("GET")
	// swagger:operation GET /headers/receiver headers getHeaders
	// ---
	// summary: Return the last message header seen per message type
	// description: Sequence number, payload size and source of the newest message of each type.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/headers/{receiver}", s.handleHeaders()).Methods("GET")
	// swagger:operation POST /record record startRecord
	// ---
	// summary: Start recording raw receiver streams to capture files
	// description: One file per receiver is created under Dir, optionally prefixed with FilePrefix.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/record", s.handleRecord()).Methods("POST")
	// swagger:operation GET /flush record stopRecord
	// ---
	// summary: Stop recording and close the capture files
	// description:
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/flush", s.handleFlush()).Methods("GET")
	// swagger:operation GET /version/{action:get|request}/receiver version
	// ---
	// summary: Read the stored version report or ask the receiver for a fresh one
	// description: The report travels on the data stream, request then get.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/version/{action:get|request}/{receiver}", s.handleVersion()).Methods("GET")
	// swagger:operation POST /reset/receiver reset resetReceiver
	// ---
	// summary: Reset receiver subsystems
	// description: Level is one of navigation, corrections, hot, warm, cold, factory.
	// responses:
	//   "200":
	//     "$ref": "#/responses/okResp"
	//   "400":
	//     "$ref": "#/responses/badReq"
	subRouter.HandleFunc("/reset/{receiver}", s.handleReset()).Methods("POST")
	s.Router.Handle("/metrics", promhttp.Handler())
	s.Router.HandleFunc("/swagger.json", s.handleSwagger()).Methods("GET")
	s.Router.Handle("/docs", middleware.Redoc(middleware.RedocOpts{
		BasePath: "/",
		Path:     "docs",
		SpecURL:  "/swagger.json",
	}, nil))
}

func (s *ApiServer) handleReceivers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling receivers request")
		json.NewEncoder(w).Encode(s.Config.Receivers)
	}
}

func (s *ApiServer) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling stats request")
		json.NewEncoder(w).Encode(s.capture.Stats())
	}
}

func (s *ApiServer) handleReceiverStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling stats request: receiver: %s", vars["receiver"])
		state, ok := s.capture.Stats()[vars["receiver"]]
		if !ok {
			http.Error(w, config.ErrReceiverNotFound{Name: vars["receiver"]}.Error(), http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(state)
	}
}

func (s *ApiServer) handleHeaders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling headers request: receiver: %s", vars["receiver"])
		headers := s.capture.Headers(vars["receiver"])
		if headers == nil {
			http.Error(w, config.ErrReceiverNotFound{Name: vars["receiver"]}.Error(), http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(headers)
	}
}

func (s *ApiServer) handleRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record := &Record{}
		err := json.NewDecoder(r.Body).Decode(record)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Debug("Handling record request: dir: %s filePrefix: %s", record.Dir, record.FilePrefix)

		if err := s.capture.Record(record.Dir, record.FilePrefix); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
}

func (s *ApiServer) handleFlush() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling flush request")
		s.capture.Flush()
	}
}

func (s *ApiServer) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling version request: receiver: %s action: %s", vars["receiver"], vars["action"])
		switch vars["action"] {
		case "request":
			if err := s.capture.RequestVersion(vars["receiver"]); err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
		default:
			version, err := s.capture.state.GetVersionInfo(vars["receiver"])
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			if version == nil {
				http.Error(w, "Version not reported yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.Write(version)
		}
	}
}

func (s *ApiServer) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		reset := &ResetRequest{}
		err := json.NewDecoder(r.Body).Decode(reset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Debug("Handling reset request: receiver: %s level: %s", vars["receiver"], reset.Level)

		mask, ok := resetMasks[reset.Level]
		if !ok {
			http.Error(w, fmt.Sprintf("Unknown reset level: %s", reset.Level), http.StatusBadRequest)
			return
		}

		if err := s.capture.ResetReceiver(vars["receiver"], mask); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
}

func (s *ApiServer) handleSwagger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.spec.Raw())
	}
}

const swaggerJSON = `{
  "swagger": "2.0",
  "info": {
    "title": "go-fusion API",
    "description": "RESTful APIs to interact with the go-fusion capture server",
    "version": "1.0.0"
  },
  "schemes": ["http"],
  "basePath": "/api",
  "consumes": ["application/json"],
  "produces": ["application/json"],
  "paths": {
    "/receivers": {
      "get": {
        "summary": "Return the list of configured receivers",
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/stats": {
      "get": {
        "summary": "Return per-receiver stream statistics",
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/stats/{receiver}": {
      "get": {
        "summary": "Return stream statistics for one receiver",
        "parameters": [{"name": "receiver", "in": "path", "required": true, "type": "string"}],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Receiver not found"}}
      }
    },
    "/headers/{receiver}": {
      "get": {
        "summary": "Return the last message header seen per message type",
        "parameters": [{"name": "receiver", "in": "path", "required": true, "type": "string"}],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Receiver not found"}}
      }
    },
    "/record": {
      "post": {
        "summary": "Start recording raw receiver streams to capture files",
        "parameters": [{"name": "record", "in": "body", "schema": {"type": "object", "properties": {"Dir": {"type": "string"}, "FilePrefix": {"type": "string"}}}}],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}
      }
    },
    "/flush": {
      "get": {
        "summary": "Stop recording and close the capture files",
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/version/{action}/{receiver}": {
      "get": {
        "summary": "Read the stored version report or ask the receiver for a fresh one",
        "parameters": [
          {"name": "action", "in": "path", "required": true, "type": "string", "enum": ["get", "request"]},
          {"name": "receiver", "in": "path", "required": true, "type": "string"}
        ],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Not reported"}}
      }
    },
    "/reset/{receiver}": {
      "post": {
        "summary": "Reset receiver subsystems",
        "parameters": [
          {"name": "receiver", "in": "path", "required": true, "type": "string"},
          {"name": "reset", "in": "body", "schema": {"type": "object", "properties": {"level": {"type": "string", "enum": ["navigation", "corrections", "hot", "warm", "cold", "factory"]}}}}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}, "502": {"description": "Send failed"}}
      }
    }
  }
}`
